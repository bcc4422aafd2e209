package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusAddr    string
	statusHistory bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running agent",
	Long:  `Fetch /status (and optionally /history) from the local API of a running agent.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Agent API address (default: server.listen from config)")
	statusCmd.Flags().BoolVar(&statusHistory, "history", false, "Also print the event history")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg.Log)

	addr := statusAddr
	if addr == "" {
		addr = cfg.Server.Listen
	}
	if addr == "" {
		return fmt.Errorf("no agent address: pass --addr or set server.listen")
	}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	client := &http.Client{Timeout: 5 * time.Second}
	paths := []string{"/status"}
	if statusHistory {
		paths = append(paths, "/history")
	}
	for _, p := range paths {
		if err := printJSON(cmd.OutOrStdout(), client, base+p); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(out io.Writer, client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("get %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}

	var v any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}
