package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zero-day-ai/audityzer"
	"github.com/zero-day-ai/audityzer/analysis"
	"github.com/zero-day-ai/audityzer/queue"
)

func newWorkerCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume audit work items from Redis and call the audit service",
		Long: "Pops audit work items from the audit queue, audits each address with the HTTP audit " +
			"endpoint and publishes the result on the job's result channel.",
		Example: "audityzer worker --endpoint http://auditor:8000/audit --redis-url redis://localhost:6379 --concurrency 8",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if cfg.Analysis == nil || cfg.Analysis.Endpoint == "" {
				return fmt.Errorf("please provide --endpoint for the audit service")
			}
			logger := newLogger(cfg, os.Stderr)

			client, err := queue.NewRedisClient(cfg.Redis.Options())
			if err != nil {
				return err
			}
			defer audityzer.CloseWithLog(client, logger, "redis client")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			auditor := analysis.NewHTTPAnalyzer(cfg.Analysis.Endpoint, analysis.WithHTTPLogger(logger))
			return queue.RunWorker(ctx, client, analysis.Processor(auditor), queue.WorkerOptions{
				Queue:             cfg.Analysis.GetQueue(),
				Concurrency:       cfg.Worker.GetConcurrency(),
				ShutdownTimeout:   cfg.Worker.GetShutdownTimeout(),
				HeartbeatInterval: cfg.Worker.GetHeartbeatInterval(),
				Logger:            logger,
			})
		},
	}

	cmd.Flags().Int("concurrency", 0, "Worker goroutines (default 4)")
	_ = v.BindPFlag("worker.concurrency", cmd.Flags().Lookup("concurrency"))
	return cmd
}
