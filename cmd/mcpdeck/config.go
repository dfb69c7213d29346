package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/mcpdeck/internal/appconfig"
	"pkt.systems/mcpdeck/internal/persist"
	"pkt.systems/mcpdeck/internal/serverprefs"
	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage mcpdeck configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var cfgPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := appconfig.WriteDefault(cfgPath, force)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("config written", "path", written)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", written)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadClientConfig(cfgPath, serverURL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server_url:      %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "state_dir:       %s\n", cfg.StateDir)
			fmt.Fprintf(out, "poll_interval:   %s\n", cfg.PollInterval)
			fmt.Fprintf(out, "request_timeout: %s\n", cfg.RequestTimeout)
			fmt.Fprintf(out, "history_max:     %d\n", cfg.HistoryMax)
			fmt.Fprintf(out, "event_buffer:    %d\n", cfg.EventBufferSize)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	return cmd
}

// loadClientConfig resolves the effective client configuration from the
// config file plus any command-line override. With neither configured,
// the last successfully used orchestrator URL is picked up from local
// state.
func loadClientConfig(cfgPath, serverURL string) (schema.ClientConfig, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return schema.ClientConfig{}, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	client, err := cfg.ClientConfig()
	if err != nil {
		return schema.ClientConfig{}, err
	}
	if client.BaseURL == "" {
		if kv, kerr := persist.NewStore(client.StateDir); kerr == nil {
			if url := serverprefs.NewStore(kv, nil).LastServerURL(); url != "" {
				client.BaseURL = url
			}
		}
	}
	return client, nil
}
