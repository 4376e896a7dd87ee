package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/code-payments/reclaim-server/pkg/app"
)

var (
	configPath string

	config   *app.BaseConfig
	shutdown = func() {}
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	root := &cobra.Command{
		Use:           "reclaim",
		Short:         "Reclaim rent and residual value from token accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			config, err = app.LoadConfig(configPath)
			if err != nil {
				return err
			}

			setupCtx, flush, err := app.Setup(cmd.Context(), config)
			if err != nil {
				return err
			}
			shutdown = flush
			cmd.SetContext(setupCtx)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "configuration file path")

	root.AddCommand(
		newRunCommand(),
		newEstimateCommand(),
		newVerifyCommand(),
	)

	err := root.ExecuteContext(ctx)
	shutdown()
	if err != nil {
		logrus.StandardLogger().WithField("type", "cmd/reclaim").WithError(err).Error("command failed")
		os.Exit(1)
	}
}
