package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arnold/gutgoals-api/internal/config"
	"github.com/arnold/gutgoals-api/internal/database"
	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/kv"
	"github.com/arnold/gutgoals-api/internal/logger"
)

var (
	cfg *config.Config
	log *zap.Logger

	kvBackend string
)

var rootCmd = &cobra.Command{
	Use:   "gutgoals",
	Short: "Gut health goals API",
	Long: `gutgoals serves the goal rotation and log history API.

Configuration comes from the environment (or a .env file); see the
config package for the variable names.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if kvBackend != "" {
			cfg.KVBackend = kvBackend
		}
		log = logger.New(cfg.LogLevel, cfg.LogFile)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&kvBackend, "kv", "", "Goal storage backend: sql, redis or memory (default from KV_BACKEND)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(goalsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openDB() (*gorm.DB, error) {
	level := gormlogger.Warn
	if strings.EqualFold(cfg.LogLevel, "debug") {
		level = gormlogger.Info
	}

	db, err := database.Open(cfg.DatabaseURL, level)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// openBackend returns the store goal and log blobs are kept in, plus a
// function releasing it.
func openBackend(ctx context.Context, db *gorm.DB) (kv.Store, func(), error) {
	switch strings.ToLower(cfg.KVBackend) {
	case "", "sql":
		return kv.NewGormStore(db), func() {}, nil
	case "redis":
		rdb, err := kv.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return kv.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	case "memory":
		mem := kv.NewMemory()
		return mem, func() { _ = mem.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown kv backend %q", cfg.KVBackend)
	}
}

func goalOptions(extra ...goals.Option) []goals.Option {
	opts := []goals.Option{
		goals.WithLogger(log),
		goals.WithCooldown(cfg.GoalCooldown),
		goals.WithActiveCount(cfg.ActiveGoalCount),
		goals.WithRetainUnconsumed(cfg.RetainUnconsumedReplacements),
	}
	return append(opts, extra...)
}
