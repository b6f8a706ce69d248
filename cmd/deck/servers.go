package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ahmetk3436/serverdeck/internal/models"
	"github.com/ahmetk3436/serverdeck/internal/proxy"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List your registered servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		servers, err := c.Servers(cmd.Context())
		if err != nil {
			return err
		}
		printServers(os.Stdout, servers)
		return nil
	},
}

func printServers(w io.Writer, servers []models.Server) {
	if len(servers) == 0 {
		fmt.Fprintln(w, "No servers registered")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNICKNAME\tTARGET\tACTIVE")
	for _, s := range servers {
		target := proxy.BaseURL(&s)
		if target == "" {
			target = "-"
		}
		active := color.RedString("no")
		if s.IsActive {
			active = color.GreenString("yes")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Nickname, target, active)
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(serversCmd)
}
