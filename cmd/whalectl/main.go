package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/whale-spotting-api/pkg/config"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "whalectl",
		Short:         "Operator tooling for the whale spotting API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}

	root.AddCommand(ingestCommand(cfg), tokenCommand(cfg))
	return root
}
