package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ahmetk3436/serverdeck/internal/client"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session in the system keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.TrimSpace(loginEmail)
		if email == "" {
			fmt.Print("Email: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read email: %w", err)
			}
			email = strings.TrimSpace(line)
		}

		password, err := readPassword()
		if err != nil {
			return err
		}

		c, err := client.New(client.Config{BaseURL: apiURL, RequestTimeout: timeout})
		if err != nil {
			return err
		}
		tokens, err := c.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		if err := saveSession(apiURL, &session{
			Email:        tokens.User.Email,
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
		}); err != nil {
			return err
		}

		color.New(color.FgGreen).Printf("Logged in as %s\n", tokens.User.Email)
		return nil
	},
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Print("Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deleteSession(apiURL); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
