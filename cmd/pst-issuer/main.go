// Command pst-issuer serves Private State Token issuance and redemption
// for one origin.
//
//	pst-issuer --origin https://issuer.example --key key1.pem --key key2.pem
//
// Every flag can also be set in a config file (--config) or from PST_ISSUER_*
// environment variables, e.g. PST_ISSUER_REDIS_ADDR. A .env file in the
// working directory is loaded first.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/privatestate/attribution-go/internal/logging"
	"github.com/privatestate/attribution-go/issuer"
)

func main() {
	if err := run(os.Args); err != nil {
		os.Exit(1)
	}
}

func run(args []string) error {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(viper.New())
	root.SetArgs(args[1:])
	return root.ExecuteContext(ctx)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "pst-issuer",
		Short:        "Private State Token issuer",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindConfig(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Config{
				Service:     "pst-issuer",
				Level:       cfg.LogLevel,
				Development: cfg.Development,
			})
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := newApp(cfg, logger)
			if err != nil {
				logger.Error("startup failed", zap.Error(err))
				return err
			}
			defer a.Close()

			return a.server.ListenAndServe(cmd.Context(), cfg.Listen)
		},
	}
	registerFlags(cmd.Flags())
	return cmd
}

// app is a configured issuer and the resources it holds.
type app struct {
	issuer *issuer.Issuer
	server *issuer.Server
	redis  *issuer.RedisSpentStore
}

func newApp(cfg Config, logger *zap.Logger) (*app, error) {
	keys, err := issuer.LoadKeyFiles(cfg.KeyFiles...)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := issuer.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	a := &app{}
	opts := []issuer.Option{
		issuer.WithLogger(logger),
		issuer.WithMetrics(metrics),
		issuer.WithCommitmentID(cfg.CommitmentID),
		issuer.WithSpentTTL(cfg.SpentTTL),
	}
	if cfg.Redis.Addr != "" {
		a.redis, err = issuer.NewRedisSpentStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		opts = append(opts, issuer.WithSpentStore(a.redis))
		logger.Info("using redis spent token store", zap.String("addr", cfg.Redis.Addr))
	}

	a.issuer, err = issuer.New(cfg.Origin, keys, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, k := range keys {
		logger.Info("signing key loaded",
			zap.Uint32("key_id", k.ID()),
			zap.Stringer("version", k.Version()),
			zap.Time("expiry", k.Expiry))
	}

	a.server = issuer.NewServer(a.issuer,
		issuer.WithServerLogger(logger),
		issuer.WithGatherer(reg))
	return a, nil
}

func (a *app) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}
