package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navguard/internal/enforcement"
	"navguard/internal/platform/config"
	"navguard/internal/platform/metrics"
	"navguard/internal/playback"
	"navguard/internal/policy"
)

func testApp(t *testing.T, s config.Settings) *app {
	t.Helper()
	a, err := newApp(s, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New())
	require.NoError(t, err)
	return a
}

func TestNewApp_configurationErrors(t *testing.T) {
	cases := map[string]config.Settings{
		"no_trusted_domains": {Policy: policy.Rules{TrustedDomains: []string{}}},
		"untrusted_host":     {Templates: playback.Templates{Host: "evil.example"}},
		"bad_selector":       {Enforcement: enforcement.Rules{Selectors: []string{"[["}}},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newApp(s, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New())
			require.Error(t, err)
			assert.True(t, errors.Is(err, policy.ErrConfiguration), "got %v", err)
		})
	}
}

func TestRouter_endToEnd(t *testing.T) {
	a := testApp(t, config.Settings{RateLimit: 100})
	r := a.router()

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(http.MethodPost, "/sessions", `{"surface":"tv","id":603,"kind":"movie"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snap playback.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))

	rec = call(http.MethodGet, "/sessions/"+snap.ID+"/enforcement.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trustedDomains":["videasy.net","player.videasy.net","videasy.org"]`)

	rec = call(http.MethodPost, "/sessions/"+snap.ID+"/requests", `{"url":"https://www.alibaba.com/"}`)
	assert.JSONEq(t, `{"allow":false}`, rec.Body.String())

	rec = call(http.MethodPost, "/enforcement/sweep", `<html><body><div class="ads">x</div></body></html>`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Navguard-Removed"))

	rec = call(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "navguard_active_sessions 1")
	assert.Contains(t, body, `navguard_gate_decisions_total{classification="blocked_pattern",decision="deny"} 1`)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("navguard_requests_total")))
}

func TestRouter_rateLimited(t *testing.T) {
	a := testApp(t, config.Settings{RateLimit: 1})
	r := a.router()

	serve := func(method, path, body string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, serve(http.MethodPost, "/sessions", `{"id":603,"kind":"movie"}`))
	assert.Equal(t, http.StatusTooManyRequests, serve(http.MethodPost, "/sessions", `{"id":603,"kind":"movie"}`))
	assert.Equal(t, http.StatusTooManyRequests, serve(http.MethodPost, "/enforcement/sweep", "<html></html>"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/sessions/nope", ""), "session callbacks are not limited")
	}
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/healthz", ""), "health checks are not limited")
}

func TestRouter_gateFloodDoesNotHideDrift(t *testing.T) {
	a := testApp(t, config.Settings{
		RateLimit: config.DefaultRateLimit,
		Recovery:  config.Recovery{Delay: 10 * time.Millisecond},
	})
	r := a.router()

	call := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	rec := call(http.MethodPost, "/sessions", `{"id":603,"kind":"movie"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap playback.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	base := "/sessions/" + snap.ID

	rec = call(http.MethodPost, base+"/navigations", `{"url":"`+snap.Destination+`","loading":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < config.DefaultRateLimit+50; i++ {
		rec = call(http.MethodPost, base+"/requests", `{"url":"https://player.videasy.net/segx.ts"}`)
		require.Equal(t, http.StatusOK, rec.Code, "gate request %d", i)
	}

	rec = call(http.MethodPost, base+"/navigations", `{"url":"https://evil.example.com/landing","loading":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"drift":true,"state":"recovering"}`, rec.Body.String())

	assert.Eventually(t, func() bool {
		got, err := a.svc.Get(snap.ID)
		return err == nil && got.State == playback.StateLoading
	}, 2*time.Second, 5*time.Millisecond, "destination reloaded")

	got, err := a.svc.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViolationCount)
}
