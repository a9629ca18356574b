package main

import (
	"github.com/spf13/cobra"
)

func newRecoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Clean up after interrupted writes",
		Long:  "Remove temp files left by interrupted writes and blob content without metadata.\nThe server runs this on startup.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.openVault()
			if err != nil {
				return err
			}
			report, err := v.Recover(cmd.Context())
			if err != nil {
				return err
			}

			if a.structured() {
				return writeStructured(report)
			}
			return writePlain("removed %d temp file(s) and %d orphaned content item(s)\n", report.TempFilesRemoved, report.OrphanContentRemoved)
		},
	}
}
