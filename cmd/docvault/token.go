package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docvault/internal/auth"
	"docvault/internal/config"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		save   bool
		global bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an admin token for destructive server routes",
		Long: "Generate a random admin token and print it with its bcrypt hash.\n" +
			"Clients send the token in DOCVAULT_ADMIN_TOKEN; the server keeps only the hash (admin_token_hash).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateToken()
			if err != nil {
				return err
			}
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}

			var path string
			if save {
				path, err = configPath(global)
				if err != nil {
					return err
				}
				if err := config.SetKey(path, "admin_token_hash", hash); err != nil {
					return err
				}
			}

			if a.structured() {
				return writeStructured(map[string]string{"token": token, "hash": hash, "saved_to": path})
			}
			if path != "" {
				fmt.Fprintf(os.Stderr, "admin_token_hash written to %s\n", path)
			}
			return writeLines([]string{
				"token: " + token,
				"hash: " + hash,
			})
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "write the hash to admin_token_hash")
	cmd.Flags().BoolVar(&global, "global", false, "with --save, write to the global config")
	return cmd
}
