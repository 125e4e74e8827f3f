package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zero-day-ai/audityzer/query"
	"github.com/zero-day-ai/audityzer/serve"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API",
		Example: "audityzer serve --addr :8080 --config audityzer.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			api := serve.NewAPI(a.manager,
				query.New(query.WithPageSize(cfg.Query.GetPageSize())),
				serve.WithAPILogger(logger),
				serve.WithHealthChecks(a.checks),
			)
			srv, err := serve.NewServer(api.Routes(),
				serve.WithAddr(cfg.Server.GetAddr()),
				serve.WithTimeouts(cfg.Server.GetReadTimeout(), cfg.Server.GetWriteTimeout()),
				serve.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			err = srv.Serve(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
