// Command cinder fetches JSON documents with a persistent local cache.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goflare.io/cinder"
	"goflare.io/cinder/fetch"
	"goflare.io/cinder/validate"
)

// cliConfig carries environment-variable defaults; flags override them.
type cliConfig struct {
	CacheDir   string        `env:"CINDER_CACHE_DIR"`
	DefaultTTL time.Duration `env:"CINDER_DEFAULT_TTL" envDefault:"1h"`
}

var (
	flagCacheDir   string
	flagTTL        time.Duration
	flagNoValidate bool
	flagShowStats  bool
	flagSchemaURL  string
	flagSchemaPath string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := cliConfig{}
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaultCacheDir()
	}

	root := &cobra.Command{
		Use:           "cinder",
		Short:         "Fetch JSON documents with a two-tier local cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", cfg.CacheDir, "disk cache directory (empty for memory-only)")
	root.PersistentFlags().DurationVar(&flagTTL, "ttl", cfg.DefaultTTL, "default entry TTL (0 for no expiration)")

	fetchCmd := &cobra.Command{
		Use:   "fetch <source>...",
		Short: "Fetch documents from URLs or files, populating the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFetch,
	}
	fetchCmd.Flags().BoolVar(&flagNoValidate, "no-validate", false, "skip basic document validation")
	fetchCmd.Flags().BoolVar(&flagShowStats, "stats", false, "print cache statistics after fetching")

	clearCmd := &cobra.Command{
		Use:   "clear [pattern]",
		Short: "Remove cached entries, optionally only keys containing pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runClear,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the size of the disk cache",
		RunE:  runStats,
	}

	validateCmd := &cobra.Command{
		Use:   "validate <source>...",
		Short: "Validate documents from URLs or files against a JSON schema",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
	validateCmd.Flags().StringVar(&flagSchemaURL, "schema-url", "", "URL of the JSON schema")
	validateCmd.Flags().StringVar(&flagSchemaPath, "schema", "", "path to a local JSON schema file")

	root.AddCommand(fetchCmd, clearCmd, statsCmd, validateCmd)
	return root
}

func newCache() (*cinder.Cache, error) {
	opts := []cinder.Option{
		cinder.WithLogger(zap.NewNop()),
		cinder.WithDefaultTTL(flagTTL),
	}
	if flagCacheDir != "" {
		opts = append(opts, cinder.WithCacheDir(flagCacheDir))
	}
	return cinder.New(opts...)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cache, err := newCache()
	if err != nil {
		return err
	}

	fetchOpts := []fetch.Option{
		fetch.WithCache(cache),
		fetch.WithLogger(zap.NewNop()),
	}
	if flagNoValidate {
		fetchOpts = append(fetchOpts, fetch.WithoutValidation())
	}
	fetcher, err := fetch.NewFetcher(fetchOpts...)
	if err != nil {
		return err
	}

	docs := fetcher.FetchAll(cmd.Context(), args)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	for _, failure := range fetcher.FailedSources() {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %s\n", failure.Source, failure.Err)
	}

	if flagShowStats {
		printStats(cmd, cache.Stats())
	}

	if len(docs) < len(args) {
		return fmt.Errorf("%d of %d sources failed", len(args)-len(docs), len(args))
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	cache, err := newCache()
	if err != nil {
		return err
	}

	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	}
	removed := cache.Clear(cmd.Context(), pattern)
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	v, err := validate.NewValidator(
		validate.WithSchemaURL(flagSchemaURL),
		validate.WithSchemaPath(flagSchemaPath),
		validate.WithLogger(zap.NewNop()),
	)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	invalid := 0
	for _, source := range args {
		var result *validate.Result
		if isURL(source) {
			result, err = v.ValidateURL(cmd.Context(), source)
		} else {
			result, err = v.ValidateFile(cmd.Context(), source)
		}
		if err != nil {
			return err
		}
		if !result.Valid {
			invalid++
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: valid=%t\n", source, result.Valid)
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d documents invalid", invalid, len(args))
	}
	return nil
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func runStats(cmd *cobra.Command, _ []string) error {
	cache, err := newCache()
	if err != nil {
		return err
	}

	stats := cache.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "disk cache: %s in %s\n",
		humanize.Bytes(uint64(stats.DiskSizeBytes)), flagCacheDir)
	return nil
}

func printStats(cmd *cobra.Command, stats cinder.Stats) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "hits: %d (memory %d, disk %d)  misses: %d  hit rate: %.2f\n",
		stats.Hits, stats.MemoryHits, stats.DiskHits, stats.Misses, stats.HitRate)
	fmt.Fprintf(out, "memory entries: %d  disk size: %s  evictions: %d  errors: %d\n",
		stats.MemoryEntries, humanize.Bytes(uint64(stats.DiskSizeBytes)), stats.Evictions, stats.Errors)
}

func defaultCacheDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cinder", "cache")
}
