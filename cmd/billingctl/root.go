package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/propledger/backend/internal/bootstrap"
	"github.com/propledger/backend/internal/infrastructure/config"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"github.com/propledger/backend/internal/infrastructure/scheduler"
)

var version = "dev"

// errJobFailed makes the process exit non-zero after the result is printed
var errJobFailed = errors.New("job reported failure")

var rootCmd = &cobra.Command{
	Use:   "billingctl",
	Short: "Run billing batch jobs once",
	Long: `billingctl runs the invoice generator, the reminder job and the yearly
developer billing regeneration against the configured database, then exits.

Configuration is read from config.toml and PB_ environment variables, the
same way the API server reads it. Each run takes the job lock the server's
scheduler uses, so a run never overlaps a scheduled one.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")
}

// session is the wired application for one command run
type session struct {
	app *bootstrap.App
	log *zap.Logger
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app, err := bootstrap.New(cmd.Context(), cfg, log, bootstrap.Options{})
	if err != nil {
		_ = logger.Sync(log)
		return nil, err
	}
	if err := app.Bus.Start(cmd.Context()); err != nil {
		app.Close(context.Background())
		_ = logger.Sync(log)
		return nil, err
	}
	return &session{app: app, log: log}, nil
}

func (s *session) close() {
	_ = s.app.Bus.Stop(context.Background())
	s.app.Close(context.Background())
	_ = logger.Sync(s.log)
}

// locked runs fn while holding the scheduler lock of kind
func (s *session) locked(ctx context.Context, kind scheduler.JobKind, fn func(ctx context.Context) error) error {
	ttl := s.app.Config.Scheduler.LockTTL
	if ttl <= 0 {
		ttl = scheduler.DefaultSchedulerConfig().LockTTL
	}
	unlock, err := s.app.Locker.Obtain(ctx, string(kind), ttl)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("Failed to release job lock", zap.String("job", string(kind)), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// printResult writes v as indented JSON to stdout
func printResult(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func triggeredBy() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "billingctl"
	}
	return "billingctl:" + host
}
