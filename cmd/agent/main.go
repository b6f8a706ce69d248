package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahmetk3436/serverdeck/internal/agent"
	"github.com/spf13/cobra"
)

// Version is set by build flags.
var Version = "1.0.0"

var (
	listenAddr string
	diskPath   string
	token      string
)

var rootCmd = &cobra.Command{
	Use:     "serverdeck-agent",
	Short:   "Serve host metrics for the ServerDeck dashboard",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
		slog.SetDefault(logger)

		hostname, _ := os.Hostname()
		srv := agent.NewServer(agent.NewHostSampler(diskPath), agent.Options{
			Token:    token,
			Hostname: hostname,
			Version:  Version,
		})
		app := srv.App()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-quit
			slog.Info("Shutting down agent...")
			app.Shutdown()
		}()

		slog.Info("Agent listening", "addr", listenAddr, "disk", diskPath, "auth", token != "")
		return app.Listen(listenAddr)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":9101", "listen address")
	rootCmd.Flags().StringVar(&diskPath, "disk", "/", "filesystem reported as disk usage")
	rootCmd.Flags().StringVar(&token, "token", os.Getenv("SERVERDECK_AGENT_TOKEN"), "bearer token required from callers")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
