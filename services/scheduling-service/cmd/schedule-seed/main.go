// Command schedule-seed loads services, employees and business hours into the scheduling
// database from a YAML file.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/grpcx"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/cache"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	file string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "schedule-seed",
		Short: "Seed and check the scheduling service",
	}
	cmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "seed.yaml", "seed file")

	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newApplyCommand(opts))
	cmd.AddCommand(newHealthCommand())
	return cmd
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "validate",
		Short:        "Parse and check a seed file without touching the database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := loadSeed(opts.file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d services, %d employees, %d open weekdays\n",
				len(plan.Services), len(plan.Employees), len(plan.Hours))
			return nil
		},
	}
}

func newApplyCommand(opts *rootOptions) *cobra.Command {
	var databaseURL, redisAddr, cachePrefix string
	cmd := &cobra.Command{
		Use:          "apply",
		Short:        "Upsert the seed file into the database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			plan, err := loadSeed(opts.file)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			pool, err := db.Open(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			var inv Invalidator
			if redisAddr != "" {
				rdb := redis.NewClient(&redis.Options{
					Addr:     redisAddr,
					Password: config.String("REDIS_PASSWORD", ""),
				})
				defer func() { _ = rdb.Close() }()
				inv = cache.NewAvailability(rdb, cachePrefix, 0, nil)
			}

			settings, err := plan.apply(ctx, storage.NewRepository(pool), inv)
			if err != nil {
				return err
			}
			if inv != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "availability cache flushed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied: %d services, %d employees, settings version %d\n",
				len(plan.Services), len(plan.Employees), settings.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", config.String("DATABASE_URL", ""), "postgres connection string")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", config.String("REDIS_ADDR", ""), "redis address of the availability cache to flush after applying")
	cmd.Flags().StringVar(&cachePrefix, "cache-prefix", config.String("AVAILABILITY_CACHE_PREFIX", "availability"), "availability cache key prefix")
	return cmd
}

func newHealthCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:          "health",
		Short:        "Query the gRPC health endpoint of a running scheduling service",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpcx.Dial(cmd.Context(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "scheduling"})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus().String())
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("service is %s", resp.GetStatus())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.String("SCHEDULING_GRPC_ADDR", "localhost:9095"), "gRPC address")
	return cmd
}
