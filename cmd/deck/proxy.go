package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ahmetk3436/serverdeck/internal/proxy"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	proxyMethod  string
	proxyBody    string
	proxyHeaders []string
)

var proxyCmd = &cobra.Command{
	Use:   "proxy <server-id> <endpoint>",
	Short: "Send one request to a server through the authenticated proxy",
	Example: `  deck proxy 7f1c0b1e-7c35-4a53-9a52-4f0d6f0f8e11 /health
  deck proxy 7f1c0b1e-... /restart -X POST -d '{"service":"nginx"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := proxy.Request{
			ServerID: args[0],
			Endpoint: args[1],
			Method:   proxyMethod,
		}
		if proxyBody != "" {
			if !json.Valid([]byte(proxyBody)) {
				return fmt.Errorf("--data must be valid JSON")
			}
			req.Body = json.RawMessage(proxyBody)
		}
		if len(proxyHeaders) > 0 {
			req.Headers = make(map[string]string, len(proxyHeaders))
			for _, h := range proxyHeaders {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("header %q must look like Name: value", h)
				}
				req.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
			}
		}

		c, _, err := authedClient(cmd.Context())
		if err != nil {
			return err
		}
		resp, err := c.Call(cmd.Context(), req)
		if err != nil {
			return err
		}

		statusColor := color.New(color.FgGreen)
		if !resp.OK() {
			statusColor = color.New(color.FgRed)
		}
		statusColor.Fprintf(os.Stderr, "%d %s\n", resp.StatusCode, resp.ContentType)
		os.Stdout.Write(resp.Body)
		if len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
			fmt.Println()
		}
		return nil
	},
}

func init() {
	proxyCmd.Flags().StringVarP(&proxyMethod, "request", "X", "GET", "HTTP method")
	proxyCmd.Flags().StringVarP(&proxyBody, "data", "d", "", "JSON request body")
	proxyCmd.Flags().StringArrayVarP(&proxyHeaders, "header", "H", nil, "extra header, repeatable")
	rootCmd.AddCommand(proxyCmd)
}
