package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"

	"github.com/operate-experience/navsync/internal/page"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

var (
	sendRelay  string
	sendTarget string
	sendRoute  string
	sendAction string
	sendSource string
	sendAuto   bool
	sendData   map[string]string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Publish a navigation event",
	Long: `Post a navigation event to a relay, which pushes it to every agent.

Example:
  navsync send --target operate-experience --route /y14-report/large --source mock-app`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendRelay, "relay", "", "Relay base URL (default: sse.url from config)")
	sendCmd.Flags().StringVar(&sendTarget, "target", "", "Target application (default: appId from config)")
	sendCmd.Flags().StringVar(&sendRoute, "route", "", "Route to navigate to")
	sendCmd.Flags().StringVar(&sendAction, "action", string(types.ActionNavigate), "Event action")
	sendCmd.Flags().StringVar(&sendSource, "source", "", "Source application, stored as data.sourceAppId")
	sendCmd.Flags().BoolVar(&sendAuto, "auto", false, "Mark as an automatic route sync (replaces history entry)")
	sendCmd.Flags().StringToStringVar(&sendData, "data", nil, "Extra data entries (key=value)")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg.Log)

	base := sendRelay
	if base == "" {
		base = cfg.SSE.URL
	}
	target := sendTarget
	if target == "" {
		target = cfg.AppID
	}

	if sendRoute != "" {
		routes := page.DefaultCatalog().Routes()
		if !route.NewTable(route.Welcome, routes...).Has(sendRoute) {
			msg := fmt.Sprintf("warning: %s is not a known route", sendRoute)
			if s, ok := suggestRoute(sendRoute, routes); ok {
				msg += fmt.Sprintf(", did you mean %s?", s)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), msg)
		}
	}

	ev := buildEvent(target, sendRoute, sendAction, sendSource, sendAuto, sendData)
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(strings.TrimRight(base, "/")+"/api/navigate", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("relay answered %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(respBody)))
	return nil
}

// buildEvent assembles the event posted by send. The timestamp is left to
// the relay.
func buildEvent(target, path, action, source string, auto bool, extra map[string]string) types.NavigationEvent {
	data := types.EventData{}
	for k, v := range extra {
		data[k] = v
	}
	if source != "" {
		data["sourceAppId"] = source
	}
	if auto {
		data["automatic"] = true
	}
	if len(data) == 0 {
		data = nil
	}
	return types.NavigationEvent{
		TargetAppID: target,
		Action:      types.Action(action),
		Route:       path,
		Data:        data,
	}
}

// suggestRoute returns the known route closest to path, if any is close
// enough to be a likely typo.
func suggestRoute(path string, routes []string) (string, bool) {
	path = route.Clean(path)
	for _, r := range routes {
		if strings.HasPrefix(r, path+"/") {
			return r, true
		}
	}
	best := ""
	bestDist := -1
	for _, r := range routes {
		d := levenshtein.ComputeDistance(path, r)
		if bestDist < 0 || d < bestDist {
			best, bestDist = r, d
		}
	}
	if bestDist < 0 || bestDist > max(3, len(path)/3) {
		return "", false
	}
	return best, true
}
