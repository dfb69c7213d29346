package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/mcpdeck"
	"pkt.systems/mcpdeck/core"
	"pkt.systems/mcpdeck/internal/histstore"
	"pkt.systems/mcpdeck/schema"
	"pkt.systems/pslog"
)

func newConsoleCmd() *cobra.Command {
	var cfgPath string
	var serverURL string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open the interactive console",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadClientConfig(cfgPath, serverURL)
			if err != nil {
				return err
			}
			deck, err := mcpdeck.New(cfg, mcpdeck.DeckDeps{Logger: pslog.Ctx(cmd.Context())})
			if err != nil {
				return err
			}
			if err := deck.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				_ = deck.Stop(context.Background())
			}()
			c := &console{
				deck: deck,
				in:   cmd.InOrStdin(),
				out:  cmd.OutOrStdout(),
			}
			return c.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "orchestrator base URL override")
	return cmd
}

type console struct {
	deck *mcpdeck.Deck
	in   io.Reader
	out  io.Writer

	server  schema.ServerName
	session *core.DialogSession
}

func (c *console) run(ctx context.Context) error {
	fmt.Fprintln(c.out, "mcpdeck console; type 'help' for commands, 'quit' to leave")
	scanner := bufio.NewScanner(c.in)
	c.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}
		fields := strings.Fields(line)
		verb, rest := fields[0], fields[1:]
		if verb == "quit" || verb == "exit" {
			break
		}
		if err := c.dispatch(ctx, verb, rest); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		c.prompt()
	}
	c.closeSession(ctx)
	return scanner.Err()
}

func (c *console) prompt() {
	if c.server != "" {
		fmt.Fprintf(c.out, "%s> ", c.server)
		return
	}
	fmt.Fprint(c.out, "> ")
}

func (c *console) dispatch(ctx context.Context, verb string, args []string) error {
	switch verb {
	case "help":
		c.printHelp()
		return nil
	case "status":
		return c.printStatus()
	case "servers":
		return c.printServers()
	case "refresh":
		return c.deck.Refresh(ctx)
	case "use":
		if len(args) != 1 {
			return fmt.Errorf("usage: use <server>")
		}
		return c.useServer(ctx, args[0])
	case "mode":
		if len(args) != 1 {
			return fmt.Errorf("usage: mode <per-invocation|per-dialog|persistent|existing-instance>")
		}
		return c.setMode(ctx, args[0])
	case "select":
		if len(args) != 1 {
			return fmt.Errorf("usage: select <instance-id>")
		}
		return c.selectInstance(ctx, args[0])
	case "invoke":
		if len(args) < 1 {
			return fmt.Errorf("usage: invoke <command> [json-params]")
		}
		return c.invoke(ctx, args[0], strings.Join(args[1:], " "))
	case "history":
		switch {
		case len(args) == 1:
			return c.printHistory(args[0])
		case len(args) == 2 && args[1] == "clear":
			return c.clearHistory(args[0])
		default:
			return fmt.Errorf("usage: history <command> [clear]")
		}
	case "draft":
		if len(args) < 1 {
			return fmt.Errorf("usage: draft <command> [json-params]")
		}
		return c.draft(args[0], strings.Join(args[1:], " "))
	case "events":
		after := schema.EventID("")
		if len(args) == 1 {
			after = schema.EventID(args[0])
		}
		return c.printEvents(after)
	case "logs":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: logs <instance-id> [after-line]")
		}
		afterLine := 0
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("after-line must be a number: %w", err)
			}
			afterLine = n
		}
		return c.tailLogs(ctx, schema.InstanceID(args[0]), afterLine)
	default:
		return fmt.Errorf("unknown command %q; type 'help'", verb)
	}
}

func (c *console) printHelp() {
	fmt.Fprint(c.out, `commands:
  servers                      list known servers and instance counts
  refresh                      reload servers and instances from the orchestrator
  use <server>                 open a dialog against a server
  mode <mode>                  set the server's lifecycle mode
  select <instance-id>         pin an instance (existing-instance mode)
  invoke <command> [json]      run a command through the open dialog
  history <command> [clear]    show or clear recent invocations of a command
  draft <command> [json]       show or save a draft for a command
  events [after-id]            show buffered push events
  logs <instance-id> [line]    tail an instance's log for a few seconds
  status                       connection state and current dialog
  quit                         leave the console
`)
}

func (c *console) printStatus() error {
	fmt.Fprintf(c.out, "connection: %s\n", c.deck.ConnState())
	if c.session == nil {
		fmt.Fprintln(c.out, "dialog:     none")
		return nil
	}
	fmt.Fprintf(c.out, "dialog:     %s (mode %s", c.server, c.session.Mode())
	if instance := c.session.Instance(); instance != "" {
		fmt.Fprintf(c.out, ", instance %s", instance)
	}
	fmt.Fprintln(c.out, ")")
	return nil
}

func (c *console) printServers() error {
	state := c.deck.Snapshot()
	names := make([]string, 0, len(state.Servers))
	for name := range state.Servers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tINSTANCES")
	for _, name := range names {
		agg := state.Servers[schema.ServerName(name)]
		fmt.Fprintf(w, "%s\t%s\t%d\n", agg.Name, agg.Status, agg.InstanceCount())
	}
	return w.Flush()
}

func (c *console) useServer(ctx context.Context, name string) error {
	server, err := schema.NormalizeServerName(name)
	if err != nil {
		return err
	}
	c.closeSession(ctx)
	session, downgraded, err := c.deck.OpenDialog(ctx, server)
	if err != nil {
		return err
	}
	c.server = server
	c.session = session
	if downgraded {
		fmt.Fprintln(c.out, "stored instance selection is gone; falling back to per-dialog")
	}
	fmt.Fprintf(c.out, "dialog open against %s (mode %s)\n", server, session.Mode())
	return nil
}

func (c *console) setMode(ctx context.Context, mode string) error {
	if c.server == "" {
		return fmt.Errorf("no server selected; 'use <server>' first")
	}
	normalized, err := schema.NormalizeLifecycleMode(mode)
	if err != nil {
		return err
	}
	if err := c.deck.SetLifecycleMode(c.server, normalized); err != nil {
		return err
	}
	// The mode applies to the next dialog; reopen to pick it up now.
	return c.useServer(ctx, string(c.server))
}

func (c *console) selectInstance(ctx context.Context, instance string) error {
	if c.server == "" {
		return fmt.Errorf("no server selected; 'use <server>' first")
	}
	if err := c.deck.SelectInstance(c.server, schema.InstanceID(instance)); err != nil {
		return err
	}
	return c.useServer(ctx, string(c.server))
}

func (c *console) invoke(ctx context.Context, command, rawParams string) error {
	if c.session == nil {
		return fmt.Errorf("no dialog open; 'use <server>' first")
	}
	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}
	req, err := c.deck.Invoke(ctx, c.session, schema.CommandName(command), params)
	if err != nil {
		return err
	}
	if len(req.Output) == 0 {
		fmt.Fprintln(c.out, "completed")
		return nil
	}
	if blocks, ok := schema.ContentBlocksFromOutput(req.Output); ok {
		for _, block := range blocks {
			var text struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			if json.Unmarshal(block, &text) == nil && text.Type == "text" {
				fmt.Fprintln(c.out, text.Text)
				continue
			}
			fmt.Fprintln(c.out, string(block))
		}
		return nil
	}
	pretty, err := json.MarshalIndent(req.Output, "", "  ")
	if err != nil {
		fmt.Fprintln(c.out, string(req.Output))
		return nil
	}
	fmt.Fprintln(c.out, string(pretty))
	return nil
}

func (c *console) printHistory(command string) error {
	if c.server == "" {
		return fmt.Errorf("no server selected; 'use <server>' first")
	}
	name, err := schema.NormalizeCommandName(command)
	if err != nil {
		return err
	}
	key := histstore.Key{Server: c.server, Command: name}
	entries, err := c.deck.History().GetHistory(key)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no history")
		return nil
	}
	for i, entry := range entries {
		inputs, _ := json.Marshal(entry.Inputs)
		fmt.Fprintf(c.out, "%2d  %s  %s\n", i+1, entry.InvokedAt.Format("2006-01-02 15:04:05"), inputs)
	}
	return nil
}

func (c *console) clearHistory(command string) error {
	if c.server == "" {
		return fmt.Errorf("no server selected; 'use <server>' first")
	}
	name, err := schema.NormalizeCommandName(command)
	if err != nil {
		return err
	}
	if err := c.deck.History().ClearHistory(histstore.Key{Server: c.server, Command: name}); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "history cleared")
	return nil
}

func (c *console) draft(command, rawParams string) error {
	if c.server == "" {
		return fmt.Errorf("no server selected; 'use <server>' first")
	}
	name, err := schema.NormalizeCommandName(command)
	if err != nil {
		return err
	}
	key := histstore.Key{Server: c.server, Command: name}
	if strings.TrimSpace(rawParams) == "" {
		inputs, ok, err := c.deck.History().GetDraft(key)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.out, "no draft")
			return nil
		}
		out, _ := json.Marshal(inputs)
		fmt.Fprintln(c.out, string(out))
		return nil
	}
	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}
	if err := c.deck.History().SaveDraft(key, params); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "draft saved")
	return nil
}

func (c *console) printEvents(after schema.EventID) error {
	var events []schema.PushEvent
	if after == "" {
		events = c.deck.RecentEvents()
	} else {
		events = c.deck.ReplaySince(after)
	}
	if len(events) == 0 {
		fmt.Fprintln(c.out, "no events")
		return nil
	}
	for _, event := range events {
		line := fmt.Sprintf("%s  %s  %s", event.ID, event.Server, event.Type)
		if event.InstanceID != "" {
			line += "  " + string(event.InstanceID)
		}
		fmt.Fprintln(c.out, line)
	}
	return nil
}

// tailLogs prints an instance's log lines for a short window: the
// catch-up since after-line plus whatever arrives live, then returns to
// the prompt.
func (c *console) tailLogs(ctx context.Context, instance schema.InstanceID, afterLine int) error {
	if c.server == "" {
		return fmt.Errorf("no server selected; 'use <server>' first")
	}
	streamCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	stream, err := c.deck.Client().OpenLogs(streamCtx, c.server, instance, afterLine)
	if err != nil {
		return err
	}
	for line := range stream.Lines() {
		fmt.Fprintf(c.out, "%6d  %s  %s\n", line.LineNumber, line.Timestamp.Format("15:04:05"), line.Text)
	}
	if err := stream.Err(); err != nil && streamCtx.Err() == nil {
		return err
	}
	return nil
}

func (c *console) closeSession(ctx context.Context) {
	if c.session == nil {
		return
	}
	c.session.Close(ctx)
	c.session = nil
	c.server = ""
}

func parseParams(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(trimmed), &params); err != nil {
		return nil, fmt.Errorf("parameters must be a JSON object: %w", err)
	}
	return params, nil
}
