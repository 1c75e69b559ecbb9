package main

import (
	"fmt"
	"os"

	"github.com/25smoking/chanwatch/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	log *zap.SugaredLogger

	// Command line flags
	configPath    string
	intervalMs    int
	maxBackoffMs  int
	staleAfter    int
	registryKind  string
	registryFile  string
	consulAddr    string
	includeRemote bool
	logLevel      string
	plainMode     bool
)

func init() {
	logger, _ := zap.NewProduction()
	log = logger.Sugar()
}

var rootCmd = &cobra.Command{
	Use:   "chanwatch",
	Short: "chanwatch - live view of the local channel topology",
	Long: `chanwatch polls a registry (local sockets, Consul catalog or a YAML file) for entities,
their ports and the connections between them, and keeps a live view up to date.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, plainMode)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认查找 chanwatch.yaml)")
	flags.IntVar(&intervalMs, "interval", 0, "scan interval in milliseconds")
	flags.IntVar(&maxBackoffMs, "max-backoff", 0, "failure backoff cap in milliseconds")
	flags.IntVar(&staleAfter, "stale-after", 0, "consecutive misses before an entity is removed")
	flags.StringVarP(&registryKind, "registry", "r", "", "registry kind (host, consul, file)")
	flags.StringVar(&registryFile, "file", "", "topology file for the file registry")
	flags.StringVar(&consulAddr, "consul", "", "consul agent address")
	flags.BoolVar(&includeRemote, "include-remote", false, "host registry: add remote peers as entities")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "watch the topology (TUI, or --plain for line output)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, plainMode)
		},
	}
	watchCmd.Flags().BoolVar(&plainMode, "plain", false, "print diffs to stdout instead of the TUI")
	rootCmd.AddCommand(watchCmd)

	rootCmd.AddCommand(newSnapshotCmd())
	rootCmd.AddCommand(newGraphCmd())
}

func main() {
	// Ensure proper cleanup on exit
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v", r)
			os.Exit(1)
		}
		log.Sync()
	}()

	if err := rootCmd.Execute(); err != nil {
		log.Sync()
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies any flags the user set and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Read(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Scan.IntervalMs = intervalMs
	}
	if flags.Changed("max-backoff") {
		cfg.Scan.MaxBackoffMs = maxBackoffMs
	}
	if flags.Changed("stale-after") {
		cfg.Scan.StaleAfterScans = staleAfter
	}
	if flags.Changed("registry") {
		cfg.Registry.Kind = config.RegistryKind(registryKind)
	}
	if flags.Changed("file") {
		cfg.Registry.File.Path = registryFile
		if !flags.Changed("registry") {
			cfg.Registry.Kind = config.RegistryFile
		}
	}
	if flags.Changed("consul") {
		cfg.Registry.Consul.Address = consulAddr
		if !flags.Changed("registry") {
			cfg.Registry.Kind = config.RegistryConsul
		}
	}
	if flags.Changed("include-remote") {
		cfg.Registry.Host.IncludeRemote = includeRemote
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads config and replaces the bootstrap logger.
func setup(cmd *cobra.Command, tui bool) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Log, tui)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = logger
	return cfg, nil
}
