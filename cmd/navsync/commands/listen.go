package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/operate-experience/navsync/internal/app"
	"github.com/operate-experience/navsync/internal/config"
	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/internal/page"
	"github.com/operate-experience/navsync/pkg/types"
)

var (
	listenSource string
	listenAppID  string
	listenAddr   string
	listenWatch  bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run a navigation agent",
	Long: `Connect to a push source and follow the navigation events addressed
to this application. Every toast and connection change is printed, and the
local API serves status, history and page state.`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenSource, "source", "", "Push source base URL (overrides config)")
	listenCmd.Flags().StringVar(&listenAppID, "app-id", "", "Application identity (overrides config)")
	listenCmd.Flags().StringVar(&listenAddr, "listen", "", "Local API address, \"off\" to disable (overrides config)")
	listenCmd.Flags().BoolVar(&listenWatch, "watch", false, "Restart the agent when a config file changes")
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := listenConfig()
	if err != nil {
		return err
	}
	initLogging(cfg.Log)
	defer logging.Close()

	out := cmd.OutOrStdout()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent, err := startAgent(ctx, cfg, out)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	if listenWatch {
		dir, err := GetWorkDir(workDir)
		if err != nil {
			agent.Close()
			return err
		}
		w, err := config.NewWatcher(dir, 0, func() {
			next, err := listenConfig()
			if err != nil {
				logging.Warn().Err(err).Msg("config reload failed, keeping the running agent")
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if err := agent.Close(); err != nil {
				logging.Warn().Err(err).Msg("closing agent for reload")
			}
			restarted, err := startAgent(ctx, next, out)
			if err != nil {
				logging.Error().Err(err).Msg("config reload failed")
				stop()
				return
			}
			agent = restarted
			fmt.Fprintln(out, "configuration reloaded")
		})
		if err != nil {
			agent.Close()
			return fmt.Errorf("watch config: %w", err)
		}
		w.Start()
		defer w.Stop()
	}

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	mu.Lock()
	defer mu.Unlock()
	return agent.Close()
}

// listenConfig loads the configuration and applies the listen flags.
func listenConfig() (*types.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if listenSource != "" {
		cfg.SSE.URL = listenSource
	}
	if listenAppID != "" {
		cfg.AppID = listenAppID
	}
	switch listenAddr {
	case "":
	case "off":
		cfg.Server.Listen = ""
	default:
		cfg.Server.Listen = listenAddr
	}
	return cfg, nil
}

// startAgent opens an agent that prints toasts and status changes to out.
func startAgent(ctx context.Context, cfg *types.Config, out io.Writer) (*app.App, error) {
	agent, err := app.New(cfg, app.Options{
		OnToast: func(t page.Toast) {
			fmt.Fprintln(out, t.Text())
		},
	})
	if err != nil {
		return nil, err
	}

	agent.Bus().SubscribeStatus(func(s event.StatusSignal) {
		line := "status: " + s.State
		if s.ClientID != "" {
			line += " (client " + s.ClientID + ")"
		}
		if s.Error != "" {
			line += ": " + s.Error
		}
		fmt.Fprintln(out, line)
	})

	if err := agent.Open(ctx); err != nil {
		agent.Close()
		return nil, err
	}
	fmt.Fprintf(out, "navsync %s listening for %q on %s\n", Version, cfg.AppID, cfg.SSE.Endpoint())
	if addr := agent.Addr(); addr != "" {
		fmt.Fprintf(out, "local API on http://%s\n", addr)
	}
	return agent, nil
}
