package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/bpmatch/internal/httpapi"
	"github.com/spigell/bpmatch/internal/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and harvest on a fixed interval",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address, overrides server.listen")
	serveCmd.Flags().Bool("harvest-on-start", false, "trigger a harvest right after start")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger.Info("starting the bpmatch server", zap.String("version", version))

	// Detached and scheduled runs keep the same per-day file as the harvest command.
	harvestLog, closeHarvestLog, err := newHarvestLogger(config.Harvest.LogDir)
	if err != nil {
		logger.Fatal("creating the harvest logger", zap.Error(err))
	}
	defer closeHarvestLog()

	comps, err := build(ctx, config, logger, harvestLog)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer comps.Close()

	srv := httpapi.New(comps.service, logger.Named("http"))

	if on, _ := cmd.Flags().GetBool("harvest-on-start"); on {
		comps.service.TriggerHarvest(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(config.Server.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		schedule(gctx, comps.service, config.Harvest.Interval, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

// schedule triggers a detached harvest on every tick until ctx is done.
func schedule(ctx context.Context, svc *service.Service, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		logger.Info("scheduled harvest is disabled")
		<-ctx.Done()
		return
	}

	logger.Info("scheduled harvest enabled", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.TriggerHarvest(ctx)
		}
	}
}
