package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"docvault/internal/config"
	"docvault/internal/format"
	"docvault/internal/metrics"
	"docvault/internal/vault"
)

// app carries state shared by every command of one invocation.
type app struct {
	cfg        *config.Config
	jsonOutput bool
	yamlOutput bool
	logLevel   string

	// metrics is only set by srv.
	metrics *metrics.Metrics
	vault   *vault.Vault
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	cmd := &cobra.Command{
		Use:           "docvault",
		Short:         "Docvault keeps documents, their blobs and offline copies on local disk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&a.yamlOutput, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")

	cmd.AddCommand(
		newSrvCmd(a),
		newStatusCmd(a),
		newBlobCmd(a),
		newGCCmd(a),
		newDocCmd(a),
		newCacheCmd(a),
		newQueueCmd(a),
		newRecoverCmd(a),
		newMigrateCmd(a),
		newConfigCmd(a),
		newTokenCmd(a),
	)

	return cmd
}

func (a *app) setup() error {
	if a.cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	warning, err := configureLoggerForCLI(a.logLevel, a.cfg.LogLevel)
	if err != nil {
		return err
	}
	if warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}

	switch {
	case a.yamlOutput:
		outputFormatter, err = format.ForName("yaml")
	default:
		outputFormatter = format.JSONFormatter{Indent: true}
	}
	return err
}

func (a *app) structured() bool {
	return a.jsonOutput || a.yamlOutput
}

// components opens the local vault on first use.
func (a *app) components(ctx context.Context) (*vault.Components, error) {
	v, err := a.openVault()
	if err != nil {
		return nil, err
	}
	return v.Open(ctx)
}

func (a *app) openVault() (*vault.Vault, error) {
	if a.vault != nil {
		return a.vault, nil
	}
	v, err := vault.New(vault.Options{
		Config:  a.cfg,
		Metrics: a.metrics,
		Logger:  slog.Default().With("component", "vault"),
	})
	if err != nil {
		return nil, err
	}
	a.vault = v
	return v, nil
}

func (a *app) close() error {
	if a.vault == nil {
		return nil
	}
	err := a.vault.Close()
	a.vault = nil
	return err
}
