package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/mcpdeck/apiclient"
	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

func newServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage server definitions on the orchestrator",
	}
	cmd.AddCommand(newServersListCmd())
	cmd.AddCommand(newServersAddCmd())
	cmd.AddCommand(newServersRemoveCmd())
	cmd.AddCommand(newServersShowCmd())
	cmd.AddCommand(newServersInstancesCmd())
	cmd.AddCommand(newServersToolsCmd())
	return cmd
}

func newClient(cmd *cobra.Command, cfgPath, serverURL string) (*apiclient.Client, error) {
	cfg, err := loadClientConfig(cfgPath, serverURL)
	if err != nil {
		return nil, err
	}
	return apiclient.New(cfg, pslog.Ctx(cmd.Context()))
}

func newServersListCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List server definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd, cfgPath, serverURL)
			if err != nil {
				return err
			}
			servers, err := client.ListServers(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tINSTANCES\tLAST VERIFIED")
			for _, srv := range servers {
				verified := "-"
				if !srv.LastVerified.IsZero() {
					verified = srv.LastVerified.Format("2006-01-02 15:04:05")
				}
				status := srv.Status
				if status == "" {
					status = schema.ServerStatusUnknown
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", srv.Name, status, srv.InstanceCount, verified)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	return cmd
}

func newServersAddCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	var configFile string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a server definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := schema.NormalizeServerName(args[0])
			if err != nil {
				return err
			}
			var configuration json.RawMessage
			if configFile != "" {
				raw, err := os.ReadFile(configFile)
				if err != nil {
					return err
				}
				if !json.Valid(raw) {
					return fmt.Errorf("%s is not valid JSON", configFile)
				}
				configuration = raw
			}
			client, err := newClient(cmd, cfgPath, serverURL)
			if err != nil {
				return err
			}
			if err := client.CreateServer(cmd.Context(), name, configuration); err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("server created", "server", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	cmd.Flags().StringVarP(&configFile, "config-file", "f", "", "server configuration JSON file")
	return cmd
}

func newServersRemoveCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a server definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := schema.NormalizeServerName(args[0])
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfgPath, serverURL)
			if err != nil {
				return err
			}
			if err := client.DeleteServer(cmd.Context(), name); err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("server deleted", "server", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	return cmd
}

func newServersShowCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a server's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := schema.NormalizeServerName(args[0])
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfgPath, serverURL)
			if err != nil {
				return err
			}
			configuration, err := client.GetServerConfiguration(cmd.Context(), name)
			if err != nil {
				return err
			}
			var pretty json.RawMessage = configuration
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	return cmd
}

func newServersInstancesCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	cmd := &cobra.Command{
		Use:   "instances <name>",
		Short: "List running instances of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := schema.NormalizeServerName(args[0])
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfgPath, serverURL)
			if err != nil {
				return err
			}
			instances, err := client.ListInstances(cmd.Context(), name)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTANCE\tSTARTED")
			for _, inst := range instances {
				started := "-"
				if !inst.StartedAt.IsZero() {
					started = inst.StartedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%s\n", inst.ID, started)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	return cmd
}

func newServersToolsCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	var kind string
	cmd := &cobra.Command{
		Use:   "tools <name>",
		Short: "List a server's tools, prompts, or resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := schema.NormalizeServerName(args[0])
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfgPath, serverURL)
			if err != nil {
				return err
			}
			var listing schema.ItemListing
			switch kind {
			case "tools":
				listing, err = client.ListTools(cmd.Context(), name)
			case "prompts":
				listing, err = client.ListPrompts(cmd.Context(), name)
			case "resources":
				listing, err = client.ListResources(cmd.Context(), name)
			default:
				return fmt.Errorf("unknown kind %q (tools, prompts, resources)", kind)
			}
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, item := range listing.Items {
				desc := item.Description
				if len(item.Errors) > 0 {
					desc = "error: " + item.Errors[0].Message
				}
				fmt.Fprintf(w, "%s\t%s\n", item.Name, desc)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if listing.RetrievedAt != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "retrieved at %s\n", listing.RetrievedAt)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	cmd.Flags().StringVarP(&kind, "kind", "k", "tools", "listing kind: tools, prompts, resources")
	return cmd
}
