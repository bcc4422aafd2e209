package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/operate-experience/navsync/internal/config"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/internal/relay"
)

var (
	relayAddr    string
	relayPersist bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a push source",
	Long: `Run the reference push source. Applications POST navigation events
to /api/navigate; agents stream them from /api/sse.`,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().StringVar(&relayAddr, "listen", "", "Address to listen on (overrides config)")
	relayCmd.Flags().BoolVar(&relayPersist, "persist", false, "Keep the event history across restarts")
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if relayAddr != "" {
		cfg.Relay.Listen = relayAddr
	}
	if relayPersist {
		cfg.Relay.Persist = true
	}
	initLogging(cfg.Log)
	defer logging.Close()

	stateDir := ""
	if cfg.Relay.Persist {
		stateDir = cfg.Relay.StateDir
		if stateDir == "" {
			stateDir = filepath.Join(config.GetPaths().State, "relay")
		}
	}

	r := relay.New(&relay.Config{
		Addr:         cfg.Relay.Listen,
		HistoryLimit: cfg.Relay.HistoryLimit,
		Heartbeat:    cfg.Relay.Heartbeat.Std(),
		EnableCORS:   true,
		StateDir:     stateDir,
	})

	l, err := net.Listen("tcp", cfg.Relay.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Relay.Listen, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Serve(l)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "navsync relay %s on http://%s\n", Version, l.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down relay")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}
