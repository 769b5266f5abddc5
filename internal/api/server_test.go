package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/rowforge/ingest/internal/audit"
)

func TestRequestIPPrefersRealIPHeader(t *testing.T) {
	r := &http.Request{Header: http.Header{"X-Real-Ip": []string{"203.0.113.5"}}, RemoteAddr: "10.0.0.1:54321"}
	if got := requestIP(r); got != "203.0.113.5" {
		t.Fatalf("expected X-Real-IP to take precedence, got %q", got)
	}
}

func TestRequestIPFallsBackToRemoteAddr(t *testing.T) {
	r := &http.Request{Header: http.Header{}, RemoteAddr: "10.0.0.1:54321"}
	if got := requestIP(r); got != "10.0.0.1:54321" {
		t.Fatalf("expected RemoteAddr fallback, got %q", got)
	}
}

func TestRecordAuditNoopWhenAuditDisabled(t *testing.T) {
	s := &Server{audit: nil}
	// Must not panic when no audit.Log is configured.
	s.recordAudit(context.Background(), audit.Params{Action: audit.ActionImportStart})
}
