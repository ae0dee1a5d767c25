package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/matheuskafuri/cryptonews/internal/cache"
	"github.com/matheuskafuri/cryptonews/internal/config"
	"github.com/matheuskafuri/cryptonews/internal/update"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const envPrefix = "CRYPTONEWS"

var (
	v      = viper.New()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "cryptonews",
	Short: "Crypto news aggregator",
	Long: `cryptonews polls cryptocurrency news feeds, keeps the articles in a local
cache and serves a searchable page of the latest headlines.

Run without a subcommand to start the web server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if v.GetBool("verbose") {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: runServe,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to config file (default "+config.DefaultConfigPath()+")")
	flags.String("db", "", "path to the article cache (default "+config.CachePath()+")")
	flags.String("listen", "", "address to serve on, overrides the config file")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	for _, name := range []string{"config", "db", "listen", "verbose"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	versionCmd.Flags().BoolVar(&flagCheck, "check", false, "check GitHub for a newer release")
	rootCmd.Flags().BoolVar(&flagRefresh, "refresh", false, "force a feed refresh on startup")
	rootCmd.Flags().BoolVar(&flagOpen, "open", false, "open the page in a browser once serving")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(briefCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
}

var (
	flagCheck      bool
	releaseChecker = update.NewChecker()
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "cryptonews %s (commit: %s, built: %s)\n", version, commit, date)
		if !flagCheck {
			return nil
		}
		res, err := releaseChecker.Check(cmd.Context(), version)
		if err != nil {
			return err
		}
		if res.Outdated {
			fmt.Fprintf(out, "A newer release is available: %s %s\n", res.Latest, res.URL)
		} else {
			fmt.Fprintln(out, "You are running the latest release.")
		}
		return nil
	},
}

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if listen := v.GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	return cfg, nil
}

func cachePath() string {
	if p := v.GetString("db"); p != "" {
		return p
	}
	return config.CachePath()
}

func openCache() (*cache.Cache, string, error) {
	path := cachePath()
	db, err := cache.Open(path)
	if err != nil {
		return nil, path, fmt.Errorf("opening cache: %w", err)
	}
	return db, path, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(ver, c, d string) {
	version = ver
	commit = c
	date = d
}
