// Package commands provides the CLI commands for navsync.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/operate-experience/navsync/internal/config"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	configPath string
	printLogs  bool
	prettyLogs bool
	logLevel   string
	workDir    string
)

var rootCmd = &cobra.Command{
	Use:   "navsync",
	Short: "navsync - cross-application navigation sync",
	Long: `navsync keeps an application's route in step with navigation events
pushed by other applications.

Run 'navsync listen' to start an agent, 'navsync relay' to run a push
source, and 'navsync send' to publish a navigation event.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand, show help
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (overrides "+config.EnvConfig+")")
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false, "Human-readable log output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Project directory (default: current directory)")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("navsync %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// loadConfig loads the configuration for the project directory, applying
// the global flags.
func loadConfig() (*types.Config, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := os.Setenv(config.EnvConfig, configPath); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if prettyLogs {
		cfg.Log.Pretty = true
	}
	return cfg, nil
}

// initLogging configures the global logger. Without --print-logs only
// warnings and errors reach stderr.
func initLogging(cfg types.LogConfig) {
	level := logging.ParseLevel(cfg.Level)
	if !printLogs && level < logging.WarnLevel {
		level = logging.WarnLevel
	}

	dir := cfg.Dir
	if dir == "" {
		dir = config.GetPaths().LogPath()
	}

	logging.Init(logging.Config{
		Level:     level,
		Output:    os.Stderr,
		Pretty:    cfg.Pretty,
		LogToFile: cfg.ToFile,
		LogDir:    dir,
	})
}
