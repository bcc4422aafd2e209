package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/operate-experience/navsync/internal/config"
	"github.com/operate-experience/navsync/internal/page"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting navsync configuration and setup.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

var debugRoutesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the pages and their routes",
	RunE:  runDebugRoutes,
}

func init() {
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
	debugCmd.AddCommand(debugRoutesCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Output as JSON
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "navsync System Paths:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Config:         %s\n", paths.Config)
	fmt.Fprintf(out, "  State:          %s\n", paths.State)
	fmt.Fprintf(out, "  Logs:           %s\n", paths.LogPath())
	fmt.Fprintf(out, "  Relay state:    %s\n", filepath.Join(paths.State, "relay"))
	fmt.Fprintf(out, "  Global config:  %s\n", config.GlobalConfigPath())
	return nil
}

func runDebugRoutes(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, p := range page.DefaultCatalog().Pages() {
		tab := "-"
		if p.Tab > 0 {
			tab = fmt.Sprint(p.Tab)
		}
		fmt.Fprintf(out, "%-28s tab %-2s %s\n", p.Route, tab, p.Title)
	}
	return nil
}
