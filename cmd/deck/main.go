package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Version is set by build flags.
var Version = "1.0.0"

var (
	apiURL  string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "deck",
	Short: "ServerDeck command line client",
	Long: `deck talks to a ServerDeck API: log in, list your servers, send
requests to them through the authenticated proxy and watch live metrics.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultAPI := os.Getenv("SERVERDECK_API")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8097"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPI, "ServerDeck API base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
