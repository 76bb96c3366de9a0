package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) CheckResult   { return CheckResult{Status: StatusHealthy} }
func unhealthy(context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(c *Checker)
		run    bool
		expect Status
	}{
		{"empty", func(c *Checker) {}, true, StatusHealthy},
		{"unchecked critical", func(c *Checker) { c.RegisterFunc("db", true, healthy) }, false, StatusUnknown},
		{"all healthy", func(c *Checker) {
			c.RegisterFunc("db", true, healthy)
			c.RegisterFunc("dir", false, healthy)
		}, true, StatusHealthy},
		{"non-critical failure", func(c *Checker) {
			c.RegisterFunc("db", true, healthy)
			c.RegisterFunc("dir", false, unhealthy)
		}, true, StatusDegraded},
		{"critical failure", func(c *Checker) {
			c.RegisterFunc("db", true, unhealthy)
			c.RegisterFunc("dir", false, healthy)
		}, true, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			tt.setup(c)
			if tt.run {
				c.Check(context.Background())
			}
			assert.Equal(t, tt.expect, c.OverallStatus())
		})
	}
}

func TestCheckPanicAndTimeout(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("panics", false, func(context.Context) CheckResult { panic("boom") })
	c.Register(&Component{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["panics"].Status)
	assert.Equal(t, "boom", results["panics"].Error)
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
}

func TestDatabaseCheck(t *testing.T) {
	ok := DatabaseCheck(func(context.Context) error { return nil })(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)

	bad := DatabaseCheck(func(context.Context) error { return errors.New("locked") })(context.Background())
	assert.Equal(t, StatusUnhealthy, bad.Status)
	assert.Equal(t, "locked", bad.Error)
}

func TestDirectoryCheck(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	assert.Equal(t, StatusHealthy, DirectoryCheck(dir)(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, DirectoryCheck(file)(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, DirectoryCheck(filepath.Join(dir, "missing"))(context.Background()).Status)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("db", true, healthy)

	rec := httptest.NewRecorder()
	c.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz?full=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.True(t, resp.Ready)
	assert.Contains(t, resp.Components, "db")
}

func TestHealthHandlerUnhealthy(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("db", true, unhealthy)

	rec := httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
