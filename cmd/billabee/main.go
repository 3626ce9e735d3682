// BillaBee - conversation client for the BillaBee chat/calendar assistant.
// Talks to the assistant backend from a terminal REPL or a local web widget.
//
// Environment variables:
//   BILLABEE_CONFIG_JSON   - Full config JSON (alternative to config file)
//   BILLABEE_API_BASE_URL  - Assistant backend base URL (overrides config)
//   BILLABEE_LOG_LEVEL     - debug, info, warn or error

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/billabee/pkg/api"
	"github.com/sipeed/billabee/pkg/config"
	"github.com/sipeed/billabee/pkg/logger"
)

var version = "dev"

type rootOptions struct {
	configPath string
	baseURL    string
	logLevel   string
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".billabee", "config.json")
}

// load reads the config and applies flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.baseURL != "" {
		cfg.API.BaseURL = o.baseURL
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !logger.SetLevel(cfg.Log.Level) {
		return nil, fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	return cfg, nil
}

func newAPIClient(cfg *config.Config) *api.Client {
	return api.New(cfg.API.BaseURL,
		api.WithTimeout(cfg.RequestTimeout()),
		api.WithRateLimit(cfg.API.RequestsPerSecond),
	)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "billabee",
		Short:         "Chat with Billa the Bee and manage your calendar",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "config file (.json, .yaml or .toml)")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "assistant backend base URL")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	chat := newChatCommand(opts)
	root.AddCommand(
		chat,
		newAskCommand(opts),
		newSetUserCommand(opts),
		newServeCommand(opts),
		newConfigCommand(opts),
	)
	root.RunE = chat.RunE
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
