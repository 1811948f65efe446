package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/faraday/faraday"
)

func newAuthCmd(app *cliApp) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Credential tools",
	}

	var password string
	checkCmd := &cobra.Command{
		Use:   "check <username>",
		Short: "Check a username and password against the credentials file",
		Long: `Check credentials the same way the HTTP API does. The password is read from
--password or, when absent, from the first line of standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			if !cmd.Flags().Changed("password") {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return NewConfigError("check credentials", "no password given",
						"Pass --password or pipe the password on stdin")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			if err := svc.Authenticate(cmd.Context(), args[0], password); err != nil {
				return NewStoreError("check credentials", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", args[0])
			return nil
		}),
	}
	checkCmd.Flags().StringVarP(&password, "password", "p", "", "password to check")

	authCmd.AddCommand(checkCmd)
	return authCmd
}
