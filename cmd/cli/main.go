// Package main provides the CLI tool for site-ledger.
// Uses Cobra for command parsing: Cobra is the standard Go CLI framework
// (used by kubectl, docker, hugo, and many others).
//
// Run with: go run ./cmd/cli --user alice providers set claude --key sk-... --priority 1
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/app"
	"github.com/fleveque/site-ledger/internal/config"
	"github.com/fleveque/site-ledger/internal/middleware"
	"github.com/fleveque/site-ledger/internal/model"
	"github.com/fleveque/site-ledger/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds what every subcommand shares. Flags fill it; setup builds the rest.
type cli struct {
	userID  string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
}

// rootCmd creates the root command. Cobra builds a tree of commands:
// ledger-cli providers list
// ledger-cli analyze text "Paid 2 lakh to the contractor"
func rootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "ledger-cli",
		Short:         "Site ledger command line tools",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.userID, "user", os.Getenv("SITELEDGER_USER"), "user id to act as")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log provider attempts")

	root.AddCommand(providersCmd(c), analyzeCmd(c), chatCmd(c), statusCmd(c), tokenCmd(c))
	return root
}

// setup loads config and, unless configOnly, opens storage.
func (c *cli) setup(configOnly bool) error {
	cfg, err := config.Load(os.Getenv(config.ConfigPathEnv))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg

	// CLI output goes to stdout; logs stay quiet unless asked for.
	c.logger = zap.NewNop()
	if c.verbose {
		if c.logger, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
	}
	if configOnly {
		return nil
	}

	if c.userID == "" {
		return errors.New("--user is required")
	}
	c.app, err = app.Build(cfg, nil, c.logger)
	return err
}

func (c *cli) close() {
	if c.app != nil {
		_ = c.app.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// signalContext is cancelled on Ctrl+C so a long failover chain stops early.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func providersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage AI provider keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured providers with masked keys",
		// RunE returns an error (vs Run which doesn't). Cobra prints the error automatically.
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(false); err != nil {
				return err
			}
			defer c.close()

			cfgs, err := c.app.Settings.List(cmd.Context(), c.userID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tKEY\tACTIVE\tPRIORITY")
			for _, p := range cfgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n", p.ID, p.Provider, p.MaskedKey(), p.IsActive, p.Priority)
			}
			return w.Flush()
		},
	})

	var (
		key      string
		priority int
		inactive bool
	)
	set := &cobra.Command{
		Use:       "set <provider>",
		Short:     "Create or replace the key for a provider",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.ProviderGemini), string(model.ProviderClaude), string(model.ProviderOpenAI)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(false); err != nil {
				return err
			}
			defer c.close()

			cfg := &model.ProviderConfig{
				UserID:   c.userID,
				Provider: model.ProviderName(strings.ToLower(args[0])),
				APIKey:   key,
				IsActive: !inactive,
				Priority: priority,
			}
			if err := c.app.Settings.Save(cmd.Context(), cfg); err != nil {
				return err
			}
			fmt.Printf("saved %s (priority %d, active %t)\n", cfg.Provider, cfg.Priority, cfg.IsActive)
			return nil
		},
	}
	set.Flags().StringVar(&key, "key", "", "API key")
	set.Flags().IntVar(&priority, "priority", 1, "failover order, 1 is tried first")
	set.Flags().BoolVar(&inactive, "inactive", false, "store the key but keep the provider switched off")
	_ = set.MarkFlagRequired("key")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a provider config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(false); err != nil {
				return err
			}
			defer c.close()
			return c.app.Settings.Delete(cmd.Context(), c.userID, args[0])
		},
	})

	return cmd
}

func analyzeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Extract a transaction with the configured providers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "text <message>",
		Short: "Analyze a free-text message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(false); err != nil {
				return err
			}
			defer c.close()

			ctx, cancel := signalContext()
			defer cancel()

			sess := c.app.AI.Session(ctx, c.userID)
			a, err := sess.AnalyzeTextTransaction(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(a)
		},
	})

	var project string
	image := &cobra.Command{
		Use:   "image <path>",
		Short: "Analyze a receipt photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(false); err != nil {
				return err
			}
			defer c.close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			reply, err := c.app.Assistant.HandleMessage(ctx, c.userID, service.AssistantRequest{ProjectID: project, Image: data})
			if err != nil {
				return err
			}
			return printJSON(reply)
		},
	}
	image.Flags().StringVar(&project, "project", "default", "project the receipt belongs to")
	cmd.AddCommand(image)

	return cmd
}

func chatCmd(c *cli) *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the assistant a free-form question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(false); err != nil {
				return err
			}
			defer c.close()

			ctx, cancel := signalContext()
			defer cancel()

			reply, err := c.app.AI.Session(ctx, c.userID).Chat(ctx, strings.Join(args, " "), history)
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&history, "context", "", "prior conversation to include")
	return cmd
}

func statusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which providers are configured and in what order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(false); err != nil {
				return err
			}
			defer c.close()

			ctx := cmd.Context()
			sess, res := c.app.AI.Initialize(ctx, c.userID)
			if res.Degraded() {
				fmt.Fprintf(os.Stderr, "warning: %v\n", res.Err)
			}

			ranked, err := sess.RankedAvailableProviders(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tAVAILABLE\tORDER")
			order := make(map[model.ProviderName]int, len(ranked))
			for i, r := range ranked {
				order[r.Provider.Name()] = i + 1
			}
			for _, s := range sess.ProviderStatus() {
				pos := "-"
				if n, ok := order[s.Provider]; ok {
					pos = fmt.Sprint(n)
				}
				fmt.Fprintf(w, "%s\t%t\t%s\n", s.Provider, s.Available, pos)
			}
			return w.Flush()
		},
	}
}

func tokenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --user (local development)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(true); err != nil {
				return err
			}
			defer c.close()

			if c.userID == "" {
				return errors.New("--user is required")
			}
			if c.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set")
			}
			token, err := middleware.IssueToken(c.cfg.Auth.JWTSecret, c.userID, c.cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
