package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kansha-backend-go/internal/config"
	"kansha-backend-go/internal/core"
	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/metrics"
	"kansha-backend-go/internal/payments"
)

var Version = "dev"

// opener builds the dead-letter service and returns a cleanup func.
type opener func(ctx context.Context) (core.DeadLetterService, func(), error)

func main() {
	if err := newRootCmd(openFirestore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kanshactl",
		Short:         "Operator tool for the Kansha backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(deadLettersCmd(open))
	return rootCmd
}

// openFirestore wires the same apply pipeline the server uses, with alerts going to the log.
func openFirestore(ctx context.Context) (core.DeadLetterService, func(), error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := db.InitFirestore(initCtx, cfg); err != nil {
		return nil, nil, err
	}
	client := db.GetFirestoreClient()

	alerter := core.LogAlerter{Logger: logger}
	reconciler := core.NewReconciler(db.NewFirestoreUserRepository(client), db.NewFirestorePurchaseRepository(client),
		payments.NewStripeProvider(cfg.StripeSecretKey), alerter, logger)

	policy := core.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.WebhookMaxAttempts
	policy.InitialBackoff = cfg.WebhookInitialBackoff
	policy.MaxBackoff = cfg.WebhookMaxBackoff

	deadLetters := db.NewFirestoreDeadLetterRepository(client)
	worker := core.NewWebhookWorker(reconciler, db.NewFirestoreWebhookEventRepository(client), deadLetters,
		policy, alerter, metrics.New(), logger)

	cleanup := func() {
		_ = db.Close()
		_ = logger.Sync()
	}
	return core.NewDeadLetterService(worker, deadLetters), cleanup, nil
}
