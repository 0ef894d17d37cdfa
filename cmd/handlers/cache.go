package handlers

import (
	"context"
	"fmt"
	"os"

	"articleforge/internal/cache"
	"articleforge/internal/config"
	"articleforge/internal/logger"

	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache management command
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the enhancement cache",
		Long:  `Inspect, clean, and clear the SQLite enhancement cache.`,
	}

	// Add subcommands
	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCacheCleanupCmd())
	cacheCmd.AddCommand(newCacheClearCmd())

	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics and storage information",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCacheStats(cmd.Context()); err != nil {
				logger.Error("Failed to get cache stats", err)
				os.Exit(1)
			}
		},
	}
}

func newCacheCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired cache entries",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCacheCleanup(cmd.Context()); err != nil {
				logger.Error("Failed to clean up cache", err)
				os.Exit(1)
			}
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the cache (removes all cached enhancements)",
		Run: func(cmd *cobra.Command, args []string) {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if err := runCacheClear(cmd.Context(), confirm); err != nil {
				logger.Error("Failed to clear cache", err)
				os.Exit(1)
			}
		},
	}

	clearCmd.Flags().Bool("confirm", false, "Skip confirmation prompt")
	return clearCmd
}

func openSQLiteCache() (*cache.SQLiteCache, error) {
	cfg := config.Get()
	if cfg.Cache.Backend != "" && cfg.Cache.Backend != cache.BackendSQLite {
		fmt.Printf("ℹ️  Configured backend is %s; operating on the SQLite cache in %s\n", cfg.Cache.Backend, cfg.Cache.Directory)
	}
	c, err := cache.NewSQLite(cfg.Cache.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache store: %w", err)
	}
	return c, nil
}

func runCacheStats(ctx context.Context) error {
	fmt.Println("📊 Cache Statistics")
	fmt.Println("==================")

	c, err := openSQLiteCache()
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close cache store", err)
		}
	}()

	stats, err := c.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get cache statistics: %w", err)
	}

	fmt.Printf("📝 Enhancements cached: %d\n", stats.EntryCount)
	fmt.Printf("⌛ Expired entries: %d\n", stats.ExpiredCount)
	fmt.Printf("💾 Cache size: %.2f MB\n", float64(stats.CacheSize)/1024/1024)
	if !stats.LastUpdated.IsZero() {
		fmt.Printf("📅 Last updated: %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func runCacheCleanup(ctx context.Context) error {
	c, err := openSQLiteCache()
	if err != nil {
		return err
	}
	defer c.Close()

	removed, err := c.Cleanup(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("🧹 Removed %d expired entries\n", removed)
	return nil
}

func runCacheClear(ctx context.Context, confirm bool) error {
	if !confirm {
		fmt.Print("⚠️  This will remove all cached enhancements. Continue? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" && response != "yes" {
			fmt.Println("Cache clear cancelled")
			return nil
		}
	}

	fmt.Println("🗑️  Clearing cache...")

	c, err := openSQLiteCache()
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close cache store", err)
		}
	}()

	if err := c.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Println("✅ Cache cleared successfully")
	return nil
}
