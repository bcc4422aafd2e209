package commands

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operate-experience/navsync/internal/page"
	"github.com/operate-experience/navsync/internal/relay"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

func TestSuggestRoute(t *testing.T) {
	routes := page.DefaultCatalog().Routes()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/dscr-trnd", route.DSCRTrend, true},
		{"/y14-report", route.Y14Report, true},
		{"covenant-monitorin", route.CovenantMonitoring, true},
		{"/loan-servce/", route.LoanService, true},
		{"/totally-unrelated-screen", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := suggestRoute(tt.in, routes)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildEvent(t *testing.T) {
	ev := buildEvent("operate-experience", route.DSCRTrend, "NAVIGATE", "cli", true,
		map[string]string{"referrer": "/welcome"})

	assert.Equal(t, "operate-experience", ev.TargetAppID)
	assert.Equal(t, types.ActionNavigate, ev.Action)
	assert.True(t, ev.Data.Automatic())
	assert.Equal(t, "cli", ev.Data.SourceAppID())
	assert.Equal(t, "/welcome", ev.Data.Referrer())
	assert.True(t, ev.Timestamp.IsZero())

	plain := buildEvent("operate-experience", route.DSCRTrend, "NAVIGATE", "", false, nil)
	assert.Nil(t, plain.Data)
}

func TestSendCommand(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmpDir, ".state"))

	r := relay.New(&relay.Config{Heartbeat: time.Hour})
	ts := httptest.NewServer(r.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = r.Close() })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{
		"send",
		"--directory", tmpDir,
		"--relay", ts.URL,
		"--route", "/dscr-trnd",
		"--source", "cli",
		"--data", "documentId=doc-7",
	})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	require.NoError(t, Execute())

	assert.Contains(t, stderr.String(), "did you mean "+route.DSCRTrend)
	assert.Contains(t, stdout.String(), `"id"`)

	history := r.History()
	require.Len(t, history, 1)
	assert.Equal(t, "operate-experience", history[0].TargetAppID)
	assert.Equal(t, "/dscr-trnd", history[0].Route)
	assert.Equal(t, "doc-7", history[0].Data.DocumentID())
	assert.Equal(t, "cli", history[0].Data.SourceAppID())
}
