package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pagedex/pagedex/pkg/config"
	"github.com/pagedex/pagedex/pkg/logger"
)

// Execute runs the pagedex command tree.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagedex",
		Short:         "Question answering over uploaded PDF documents",
		Long:          "pagedex ingests PDF documents into a vector index and answers questions about them with page-level citations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not load .env: %v\n", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.Init(&logger.Config{
				Level:      logger.ParseLevel(cfg.Runtime.LogLevel),
				Output:     cmd.ErrOrStderr(),
				JSON:       cfg.Runtime.LogJSON,
				TimeFormat: "15:04:05",
			})
			ctx := logger.ContextWithLogger(cmd.Context(), log)
			ctx = contextWithConfig(ctx, cfg)
			cmd.SetContext(ctx)
			return nil
		},
	}
	root.AddCommand(
		newUploadCmd(),
		newAskCmd(),
		newListCmd(),
		newInfoCmd(),
		newRemoveCmd(),
		newReingestCmd(),
		newSweepCmd(),
		newServeCmd(),
	)
	return root
}

type configKey struct{}

func contextWithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}

// withApp builds the app for one command run and tears it down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(ctx); closeErr != nil {
			logger.FromContext(ctx).Warn("shutdown incomplete", "error", closeErr)
		}
	}()
	return fn(ctx, app)
}
