package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"inspection-chat/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := marshalConfig(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}

// marshalConfig renders cfg with secrets masked
func marshalConfig(cfg *config.Config) ([]byte, error) {
	masked := *cfg
	if masked.Anthropic.APIKey != "" {
		masked.Anthropic.APIKey = "********"
	}
	if masked.Database.URL != "" {
		masked.Database.URL = maskURLPassword(masked.Database.URL)
	}
	data, err := yaml.Marshal(masked)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func maskURLPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "********"
	}
	return u.Redacted()
}
