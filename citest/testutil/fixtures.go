package testutil

import (
	"math/rand"
	"time"

	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

// SourceApp is the source application used by fixtures.
const SourceApp = "mock-app"

// RandomString generates a random string of given length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[r.Intn(len(charset))]
	}
	return string(b)
}

// UniqueAppID returns an application id no other test uses.
func UniqueAppID() string {
	return "app-" + RandomString(8)
}

// FromSource returns event data naming the source application, with
// automatic set when auto is true.
func FromSource(source string, auto bool) types.EventData {
	data := types.EventData{"sourceAppId": source}
	if auto {
		data["automatic"] = true
	}
	return data
}

// ReportRoutes is a rotation of routes with pages of their own.
var ReportRoutes = []string{
	route.Y14Report,
	route.DSCRTrend,
	route.CovenantMonitoring,
	route.FinancialStatement,
}
