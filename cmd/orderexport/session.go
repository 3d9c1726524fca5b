package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var sessionCookie string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the stored session cookie",
	Long: `Manage the Cookie header kept in the system keyring.

Copy the Cookie request header from your browser's developer tools while signed in and
store it once with 'session save'; exports then pick it up automatically. A cookie given
with --cookie or ORDERS_COOKIE always takes precedence.`,
}

var sessionSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store a Cookie header in the system keyring",
	Example: `  # From a flag
  orderexport session save --cookie 'session-id=...; at-main=...'

  # From stdin
  pbpaste | orderexport session save`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		header := sessionCookie
		if strings.TrimSpace(header) == "" {
			header, err = readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
		}
		if err := a.keyring.Save(header); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session cookie stored in keyring entry %s/%s\n", a.keyring.Service, a.keyring.User)
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored Cookie header",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.keyring.Delete(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session cookie removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionSaveCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)

	sessionSaveCmd.Flags().StringVar(&sessionCookie, "cookie", "", "Cookie header to store (read from stdin when empty)")
}

func readLine(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read cookie: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no cookie given on stdin")
	}
	return line, nil
}
