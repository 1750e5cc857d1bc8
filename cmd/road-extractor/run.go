package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/openroads/road-extractor/internal/api_server"
	"github.com/openroads/road-extractor/internal/config"
	"github.com/openroads/road-extractor/internal/imagery"
	"github.com/openroads/road-extractor/internal/queue"
	"github.com/openroads/road-extractor/internal/service"
	"github.com/openroads/road-extractor/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the road extractor api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		undo := log.Setup(cfg.Service.LogLevel)
		defer undo()

		zap.S().Info("Starting API service...")
		defer zap.S().Info("API service stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		s, _, err := openStore(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}
		defer s.Close()

		pool, err := openPool(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing queue pool", "error", err)
		}
		defer pool.Close()

		// insert only: the api never works jobs
		riverClient, err := queue.NewClient(pool)
		if err != nil {
			zap.S().Fatalw("initializing river client", "error", err)
		}

		primaryRedis := queue.NewRedisClient(cfg.Queue.Primary.RedisAddress, cfg.Queue.Primary.RedisDB)
		defer primaryRedis.Close()
		postprocessRedis := queue.NewRedisClient(cfg.Queue.Postprocess.RedisAddress, cfg.Queue.Postprocess.RedisDB)
		defer postprocessRedis.Close()

		primary := stageQueue(queue.StagePrimary, riverClient,
			queue.NewRedisBackend(primaryRedis, queue.StagePrimary, cfg.Queue.Primary.Retention), cfg.Queue.Primary)
		postprocess := stageQueue(queue.StagePostprocess, riverClient,
			queue.NewRedisBackend(postprocessRedis, queue.StagePostprocess, cfg.Queue.Postprocess.Retention), cfg.Queue.Postprocess)

		artifacts, err := newArtifactStore(cfg)
		if err != nil {
			zap.S().Fatalw("initializing artifact store", "error", err)
		}

		producer := newEventProducer(cfg)
		defer producer.Close()

		jobService := service.NewJobService(
			s,
			imagery.NewClient(cfg.Imagery.URL, cfg.Imagery.Timeout),
			artifacts,
			primary,
			postprocess,
			service.WithPresignTTL(cfg.S3.PresignTTL),
			service.WithEventWriter(producer),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				return err
			}
			return apiserver.New(cfg, jobService, listener).Run(gctx)
		})
		g.Go(func() error {
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				return err
			}
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener).Run(gctx)
		})

		if err := g.Wait(); err != nil {
			zap.S().Errorw("server stopped with error", "error", err)
			return err
		}
		return nil
	},
}
