package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oszuidwest/zwfm-videoencoder/internal/config"
	"github.com/oszuidwest/zwfm-videoencoder/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "zwfm-videoencoder",
	Short: "Web control panel for an FFmpeg video encoder",
	Long: `zwfm-videoencoder supervises a single FFmpeg process that encodes an
input source to a streaming destination. It serves a web interface and a JSON
API to start, stop and restart the encoder and to follow its output.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServeCmd,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server (default)",
	RunE:  runServeCmd,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "zwfm-videoencoder %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.json next to the binary)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyLogFlags(cmd.Flags(), &cfg.Logging)
	initLogging(cfg.Logging)

	slog.Info("using config file", "path", path)
	return runServer(cmd.Context(), cfg)
}

// configPath returns the --config value or config.json next to the binary.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(execPath), "config.json"), nil
}

// applyLogFlags overrides logging settings with flags the user set
// explicitly, so flag defaults never shadow config or environment values.
func applyLogFlags(flags *pflag.FlagSet, cfg *config.LoggingConfig) {
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		cfg.Level = strings.ToLower(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		cfg.Format = strings.ToLower(format)
	}
	if cfg.Level == "warning" {
		cfg.Level = "warn"
	}
}

// initLogging installs the redacting logger as the slog default.
func initLogging(cfg config.LoggingConfig) {
	observability.SetDefault(observability.NewLogger(cfg))
}
