package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/ual/internal/config"
	"github.com/danmuck/ual/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestBuildFromTemplate(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	path := filepath.Join(dir, "uald.toml")
	if err := config.WriteTemplate(path, "gateway", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	gw, err := config.LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	gw.KeyFile = filepath.Join(dir, "gw.key")
	gw.APIToken = "secret"

	g, a, err := build(gw)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if !a.KeyCreated {
		t.Fatalf("key file should have been created")
	}
	if _, err := os.Stat(gw.KeyFile); err != nil {
		t.Fatalf("key file: %v", err)
	}
	if _, ok := a.Atlas.Resolve("pallet"); !ok {
		t.Fatalf("configured namespace not active")
	}

	rr := httptest.NewRecorder()
	g.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	g.HTTPRouter().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status with token = %d", rr.Code)
	}
}
