package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler_AllStoresUp_Returns200(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"primary": fakePinger{}, "secondary": fakePinger{}})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := decodeBody(t, w); body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestHealthHandler_StoreDown_Returns503(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"primary":   fakePinger{},
		"secondary": fakePinger{err: errors.New("connection refused")},
	})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	body := decodeBody(t, w)
	stores := body["stores"].(map[string]any)
	if stores["secondary"] != "unreachable" {
		t.Errorf("stores = %v", stores)
	}
	if _, ok := stores["primary"]; ok {
		t.Errorf("healthy store should not be listed: %v", stores)
	}
}
