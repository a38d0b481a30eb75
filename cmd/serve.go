package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/retention"
	"github.com/spigell/nexhire/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := mustLogger(false)
	config := mustConfig(logger)

	logger.Info("starting the nexhire server", zap.String("version", version))

	st, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the activity log", zap.Error(err))
	}
	defer st.Close()

	svc, done, err := newService(ctx, config, st, logger)
	if err != nil {
		logger.Fatal("building the analysis service", zap.Error(err))
	}
	defer done()

	if config.Retention.Enabled() {
		sched, err := retention.New(config.Retention, st, logger)
		if err != nil {
			logger.Fatal("configuring activity log retention", zap.Error(err))
		}
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("starting activity log retention", zap.Error(err))
		}
		defer sched.Stop()
	}

	if !config.Admin.Enabled() {
		logger.Warn("admin credentials are not set, the activity console is disabled",
			zap.String("hint", "run 'nexhire admin hash-password' and set admin.username and admin.password-hash"),
		)
	}

	srv := server.New(config.Server, svc, st, config.Admin, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("serving http", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
