package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gitlab.com/d21d3q/gofindmy/internal/config"
	"gitlab.com/d21d3q/gofindmy/internal/server"
	"gitlab.com/d21d3q/gofindmy/internal/sink"
	"gitlab.com/d21d3q/gofindmy/internal/sink/postgres"
	"gitlab.com/d21d3q/gofindmy/internal/sink/pubsub"
	"gitlab.com/d21d3q/gofindmy/pkg/gofindmy"
)

var (
	rootCmd = &cobra.Command{
		Use:   "gofindmy-analyze [hex]",
		Short: "Decode Apple Offline Finding advertisements",
		Long: "gofindmy-analyze decodes the manufacturer-specific data of Offline Finding BLE advertisements.\n" +
			"Input is hex starting with the company identifier (4C00) unless --payload-only is given.",
		Args: cobra.MaximumNArgs(1),
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := gofindmy.AnalyzeOptions{Address: address, PayloadOnly: payloadOnly}
			ctx := cmd.Context()
			if len(args) == 0 {
				return runInteractive(ctx, opts)
			}
			return runAnalyze(ctx, opts, args[0])
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion service",
		Long: "serve accepts POST /decode requests, decodes the advertisement and forwards the result to\n" +
			"Postgres and Pub/Sub when they are configured.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), serveCfg)
		},
	}

	address     string
	payloadOnly bool
	verbose     bool
	migrate     bool
	serveCfg    = config.FromEnv()
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&address, "address", "", "advertising address used to reconstruct the public key (AA:BB:CC:DD:EE:FF)")
	rootCmd.Flags().BoolVar(&payloadOnly, "payload-only", false, "input starts at the advertisement type (company identifier already stripped)")

	f := serveCmd.Flags()
	f.StringVar(&serveCfg.HTTPAddr, "listen", serveCfg.HTTPAddr, "listen address")
	f.BoolVar(&serveCfg.PayloadOnly, "payload-only", serveCfg.PayloadOnly, "request payloads start at the advertisement type")
	f.IntVar(&serveCfg.PayloadPreviewChars, "preview-chars", serveCfg.PayloadPreviewChars, "payload characters logged per request at debug level")
	f.StringVar(&serveCfg.DB.Host, "db-host", serveCfg.DB.Host, "Postgres host (direct connection)")
	f.StringVar(&serveCfg.DB.Name, "db-name", serveCfg.DB.Name, "Postgres database")
	f.StringVar(&serveCfg.DB.User, "db-user", serveCfg.DB.User, "Postgres user")
	f.StringVar(&serveCfg.DB.InstanceConnectionName, "db-instance", serveCfg.DB.InstanceConnectionName, "Cloud SQL instance connection name")
	f.BoolVar(&migrate, "migrate", false, "create the advertisement table on startup")
	f.StringVar(&serveCfg.PubSub.ProjectID, "project", serveCfg.PubSub.ProjectID, "GCP project for the callback topic")
	f.StringVar(&serveCfg.PubSub.Topic, "topic", serveCfg.PubSub.Topic, "Pub/Sub callback topic")
	f.BoolVar(&serveCfg.PubSub.Ordering, "ordering", serveCfg.PubSub.Ordering, "order callbacks per device")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}

func runInteractive(ctx context.Context, opts gofindmy.AnalyzeOptions) error {
	scanner := bufio.NewScanner(os.Stdin)
	logrus.Info("gofindmy analyze mode. Paste a hex advertisement and press Enter (Ctrl+D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runAnalyze(ctx, opts, line); err != nil {
			logrus.WithError(err).Error("failed to decode advertisement")
		}
	}
	return scanner.Err()
}

func runAnalyze(ctx context.Context, opts gofindmy.AnalyzeOptions, hex string) error {
	result, err := gofindmy.AnalyzeHexWithOptions(ctx, hex, opts)
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	return nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	var sinks sink.Multi
	defer func() {
		if err := sinks.Close(); err != nil {
			logrus.WithError(err).Warn("closing sinks")
		}
	}()

	if cfg.DB.Enabled() {
		store, err := postgres.Open(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		sinks = append(sinks, store)
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
	} else {
		logrus.Info("database not configured; postgres sink disabled")
	}

	if cfg.PubSub.Enabled() {
		pub, err := pubsub.Open(ctx, cfg.PubSub)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
		sinks = append(sinks, pub)
	} else {
		logrus.Info("pub/sub not configured; callbacks disabled")
	}

	var s sink.Sink
	if len(sinks) > 0 {
		s = sinks
	}
	return server.New(s, cfg.PayloadOnly, cfg.PayloadPreviewChars).ListenAndServe(ctx, cfg.HTTPAddr)
}
