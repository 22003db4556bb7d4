package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/samandartukhtayev/user-sync/repository"
	"github.com/samandartukhtayev/user-sync/server"
	"github.com/samandartukhtayev/user-sync/sharding"
)

func newServeCommand(o *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the users collection from the configured shards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			logger := klog.FromContext(ctx)

			cfg, err := o.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			sm, err := sharding.NewShardManager(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create shard manager: %w", err)
			}
			defer func() { err = multierr.Append(err, sm.Close()) }()
			logger.Info("Connected to all database shards and replicas", "shards", sm.NumShards())

			repo := repository.NewUserRepository(sm)
			if err := repo.Migrate(ctx); err != nil {
				return err
			}

			srv := server.New(repo, server.WithHealthCheck(sm.Ping), server.WithLogger(logger))
			return srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on (overrides the config file)")

	return cmd
}
