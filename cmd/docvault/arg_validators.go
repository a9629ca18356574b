package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docvault/internal/models"
)

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.New(message)
		}
		return nil
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func requireAtLeastOneID(cmd *cobra.Command, args []string) error {
	return requireAtLeastArgs(1, "id is required")(cmd, args)
}

func requireOneID(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(1, "exactly one id is required")(cmd, args)
}

// parseBlobIDs accepts bare digests and blob: references.
func parseBlobIDs(args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		id, err := models.ParseBlobID(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid blob id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
