package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiserver "github.com/openroads/road-extractor/internal/api_server"
	"github.com/openroads/road-extractor/internal/config"
	"github.com/openroads/road-extractor/internal/inference"
	"github.com/openroads/road-extractor/internal/postprocess"
	"github.com/openroads/road-extractor/internal/queue"
	"github.com/openroads/road-extractor/internal/vectorize"
	"github.com/openroads/road-extractor/pkg/log"
	"github.com/riverqueue/river"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const riverStopTimeout = 30 * time.Second

var stageName string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Work the jobs of one pipeline stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, err := queue.ParseStage(stageName)
		if err != nil {
			return err
		}

		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		undo := log.Setup(cfg.Service.LogLevel)
		defer undo()

		zap.S().Infow("Starting stage worker...", "stage", stage)
		defer zap.S().Infow("stage worker stopped", "stage", stage)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		sc := stageConfig(cfg, stage)

		pool, err := openPool(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing queue pool", "error", err)
		}
		defer pool.Close()

		redisClient := queue.NewRedisClient(sc.RedisAddress, sc.RedisDB)
		defer redisClient.Close()
		backend := queue.NewRedisBackend(redisClient, stage, sc.Retention)

		artifacts, err := newArtifactStore(cfg)
		if err != nil {
			zap.S().Fatalw("initializing artifact store", "error", err)
		}

		workers := river.NewWorkers()
		switch stage {
		case queue.StagePrimary:
			w := inference.NewWorker(inference.LuminanceSegmenter{}, artifacts, cfg.Queue.DownloadTimeout)
			river.AddWorker(workers, queue.NewTrackedWorker(backend, w.Run, queue.DefaultStageTimeout))
		case queue.StagePostprocess:
			w := postprocess.NewWorker(vectorize.NewProcessor(cfg.Queue.DownloadTimeout), artifacts)
			river.AddWorker(workers, queue.NewTrackedWorker(backend, w.Run, queue.DefaultStageTimeout))
		}

		riverClient, err := queue.NewClient(pool,
			queue.WithQueue(sc.QueueName, sc.MaxWorkers),
			queue.WithWorkers(workers),
		)
		if err != nil {
			zap.S().Fatalw("initializing river client", "error", err)
		}

		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("failed to start river: %w", err)
		}
		zap.S().Infow("river worker started", "queue", sc.QueueName, "max_workers", sc.MaxWorkers)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				return err
			}
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener).Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), riverStopTimeout)
			defer stopCancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				zap.S().Warnw("failed to stop river client", "error", err)
			}
			return nil
		})

		return g.Wait()
	},
}

func init() {
	workerCmd.Flags().StringVar(&stageName, "stage", string(queue.StagePrimary), "pipeline stage to work: primary or postprocess")
}
