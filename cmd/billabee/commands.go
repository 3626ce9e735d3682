package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/sipeed/billabee/pkg/channels"
	"github.com/sipeed/billabee/pkg/config"
	"github.com/sipeed/billabee/pkg/conversation"
	"github.com/sipeed/billabee/pkg/logger"
	"github.com/sipeed/billabee/pkg/render"
)

// newTerminal wires a terminal channel to a fresh conversation.
func newTerminal(cfg *config.Config, historyFile string) (*channels.TerminalChannel, *conversation.Dispatcher) {
	markdown := cfg.Chat.Markdown && render.IsTerminal(os.Stdout)
	term := channels.NewTerminalChannel(os.Stdout, render.NewTerminal(markdown, render.Width(os.Stdout)), historyFile)
	client := conversation.NewClient(newAPIClient(cfg), term, conversation.OptionsFromConfig(cfg.Chat))
	d := conversation.NewDispatcher(client, conversation.WithCopier(clipboard.WriteAll))
	term.Bind(d)
	return term, d
}

// selectConfiguredUser scopes the session to api.user when one is set.
func selectConfiguredUser(ctx context.Context, cfg *config.Config, d *conversation.Dispatcher) {
	if cfg.API.User == "" {
		return
	}
	if err := d.Handle(ctx, conversation.IntentSetUser, conversation.Request{User: cfg.API.User}); err != nil {
		logger.WarnCF("cli", "could not select configured user", map[string]interface{}{
			"user":  cfg.API.User,
			"error": err.Error(),
		})
	}
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			term, d := newTerminal(cfg, cfg.HistoryPath())
			selectConfiguredUser(cmd.Context(), cfg, d)
			return term.Run(cmd.Context())
		},
	}
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	var confirm bool
	var export string
	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Send a single request and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			term, d := newTerminal(cfg, "")
			selectConfiguredUser(ctx, cfg, d)

			if err := term.Handle(ctx, strings.Join(args, " ")); err != nil {
				return err
			}
			if d.Batch() == nil {
				return nil
			}
			if export != "" {
				if err := d.Handle(ctx, conversation.IntentExportEvents, conversation.Request{Path: export}); err != nil {
					return err
				}
			}
			if confirm {
				return d.Handle(ctx, conversation.IntentConfirmSelection, conversation.Request{})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "add every proposed event to the calendar")
	cmd.Flags().StringVar(&export, "export", "", "save proposed events to this .ics file")
	return cmd
}

func newSetUserCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-user <id>",
		Short: "Scope calendar operations to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			_, d := newTerminal(cfg, "")
			return d.Handle(cmd.Context(), conversation.IntentSetUser, conversation.Request{User: args[0]})
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat widget over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.WebChat.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.WebChat.Port = port
			}

			backend := newAPIClient(cfg)
			if cfg.API.User != "" {
				if err := backend.SetUser(cmd.Context(), cfg.API.User); err != nil {
					logger.WarnCF("cli", "could not select configured user", map[string]interface{}{
						"user":  cfg.API.User,
						"error": err.Error(),
					})
				}
			}

			ch, err := channels.NewWebChatChannel(cfg.WebChat, backend, conversation.OptionsFromConfig(cfg.Chat), cfg.Chat.Markdown)
			if err != nil {
				return err
			}
			if err := ch.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "BillaBee is buzzing on http://%s\n", ch.Addr())

			<-cmd.Context().Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return ch.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides webchat.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides webchat.port)")
	return cmd
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.configPath)
			}
			cfg := config.DefaultConfig()
			if opts.baseURL != "" {
				cfg.API.BaseURL = opts.baseURL
			}
			if err := config.SaveConfig(opts.configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", opts.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.WebChat.Password != "" {
				cfg.WebChat.Password = "********"
			}
			out, err := config.Marshal(opts.configPath, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
