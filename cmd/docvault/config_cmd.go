package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docvault/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(a))
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigPathCmd(a))
	return cmd
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get [<key>]",
		Short: "Get a config value, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				values := make(map[string]string, len(config.AllowedKeys()))
				for _, key := range config.AllowedKeys() {
					value, err := a.cfg.Get(key)
					if err != nil {
						return err
					}
					values[key] = value
				}
				if a.structured() {
					return writeStructured(values)
				}
				for _, key := range config.AllowedKeys() {
					if err := writePlain("%s = %s\n", key, values[key]); err != nil {
						return err
					}
				}
				return nil
			}

			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := a.cfg.Get(key)
			if err != nil {
				return err
			}
			if a.structured() {
				return writeStructured(map[string]string{key: value})
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			path, err := configPath(global)
			if err != nil {
				return err
			}
			return config.SetKey(path, key, value)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/"+config.FileName+")")
	return cmd
}

func newConfigPathCmd(a *app) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file that set writes to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(global)
			if err != nil {
				return err
			}
			if a.structured() {
				return writeStructured(map[string]string{"path": path})
			}
			return writePlain("%s\n", path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "print the global config path")
	return cmd
}

func configPath(global bool) (string, error) {
	if global {
		return config.GlobalPath()
	}
	return config.ProjectPath()
}
