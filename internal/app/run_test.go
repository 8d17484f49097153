package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// テスト環境ではDBに到達できないため、serve/worker/migrateは接続エラーで終了する。

func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) should fail when the database is unreachable")
	}
	if !strings.Contains(err.Error(), "primary") {
		t.Errorf("error should name the primary store, got %v", err)
	}
}

func TestRun_WorkerCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"worker"}); err == nil {
		t.Fatal("Run(worker) should fail when the database is unreachable")
	}
}

func TestRun_DefaultCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{}); err == nil {
		t.Fatal("Run([]) should fail when the database is unreachable")
	}
}

func TestRun_MigrateCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil {
		t.Fatal("Run(migrate) should fail when the database is unreachable")
	}
	if strings.Contains(buf.String(), "secret") {
		t.Error("logs should not contain the database password")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("PRIMARY_DATABASE_URL", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_InvalidBookCatalogURL_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("BOOK_CATALOG_FEED_URL", "ftp://catalog.example.com/feed")

	cfg, err := Init(&bytes.Buffer{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := newBookCatalog(cfg, nil); err == nil {
		t.Fatal("newBookCatalog should reject a non-http(s) URL")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"unavailable", http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, want /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			u, err := url.Parse(srv.URL)
			if err != nil {
				t.Fatalf("parse server URL: %v", err)
			}
			t.Setenv("SERVER_PORT", u.Port())

			err = Run(&bytes.Buffer{}, []string{"healthcheck"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run(healthcheck) error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	if err := Run(&bytes.Buffer{}, []string{"fetch"}); err == nil {
		t.Fatal("Run with an unknown command should return error")
	}
}
