package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/mcpdeck/internal/appconfig"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run mcpdeck diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			cfg, err := loadClientConfig(cfgPath, serverURL)
			if err != nil {
				return err
			}
			logger.Info("doctor config ok", "server_url", cfg.BaseURL, "state_dir", cfg.StateDir)

			if err := verifyStateDir(cfg.StateDir); err != nil {
				return err
			}
			logger.Info("doctor state dir ok", "dir", cfg.StateDir)

			client, err := newClient(cmd, cfgPath, serverURL)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			servers, err := client.ListServers(ctx)
			if err != nil {
				return fmt.Errorf("orchestrator unreachable: %w", err)
			}
			logger.Info("doctor orchestrator ok", "servers", len(servers))
			for _, srv := range servers {
				instances, err := client.ListInstances(ctx, srv.Name)
				if err != nil {
					logger.Warn("doctor instance list failed", "server", srv.Name, "err", err)
					continue
				}
				logger.Info("doctor server ok", "server", srv.Name, "status", srv.Status, "instances", len(instances))
			}
			logger.Info("doctor done")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "network check timeout")
	return cmd
}

// verifyStateDir checks the state directory can be created and written.
func verifyStateDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("state dir not writable: %w", err)
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("state dir not writable: %w", err)
	}
	return os.Remove(probe)
}
