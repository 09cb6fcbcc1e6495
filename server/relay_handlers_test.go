package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-code-relay/internal/config"
	"github.com/jrsteele09/go-code-relay/relay"
	"github.com/jrsteele09/go-code-relay/relay/pendingrepo"
	"github.com/jrsteele09/go-code-relay/server"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	config.EnvVars
	config.Cors
	config.Relay
	config.Store
}

func newTestConfig() testConfig {
	return testConfig{
		EnvVars: config.EnvVars{Port: "8080", AppName: "test", Env: "TEST", LogLevel: "disabled"},
		Relay:   config.Relay{DepositMethod: http.MethodGet, CodeTTL: 10 * time.Minute, ConsumeOnWithdraw: true},
		Store:   config.Store{Kind: config.StoreMemory, CleanupInterval: time.Minute},
	}
}

func newTestServer(t *testing.T, cfg testConfig, repo pendingrepo.Repo) *server.Server {
	t.Helper()
	return server.New(cfg, relay.NewService(repo, cfg))
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func deposit(t *testing.T, h http.Handler, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, httptest.NewRequest(http.MethodGet, server.RouteStore+"?"+params.Encode(), nil))
}

func withdrawJSON(t *testing.T, h http.Handler, state string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"state": state})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, server.RouteStore, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return do(t, h, req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestDepositAndWithdraw(t *testing.T) {
	h := newTestServer(t, newTestConfig(), pendingrepo.NewInMemoryRepo())

	rec := deposit(t, h, url.Values{"code": {"abc"}, "state": {"s1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Code stored!", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = withdrawJSON(t, h, "s1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]string{"code": "abc"}, decodeBody(t, rec))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	// consumed on withdraw
	rec = withdrawJSON(t, h, "s1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "PROXY: No auth code stored in proxy.", decodeBody(t, rec)["error"])
}

func TestWithdraw_StateSources(t *testing.T) {
	cfg := newTestConfig()
	cfg.ConsumeOnWithdraw = false
	h := newTestServer(t, cfg, pendingrepo.NewInMemoryRepo())
	require.Equal(t, http.StatusOK, deposit(t, h, url.Values{"code": {"abc"}, "state": {"s1"}}).Code)

	t.Run("query", func(t *testing.T) {
		rec := do(t, h, httptest.NewRequest(http.MethodPost, server.RouteStore+"?state=s1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "abc", decodeBody(t, rec)["code"])
	})

	t.Run("form body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, server.RouteStore, strings.NewReader("state=s1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := do(t, h, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "abc", decodeBody(t, rec)["code"])
	})

	t.Run("json body", func(t *testing.T) {
		rec := withdrawJSON(t, h, "s1")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "abc", decodeBody(t, rec)["code"])
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, server.RouteStore, strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		rec := do(t, h, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "PROXY: No state provided. Please provide a state parameter.", decodeBody(t, rec)["error"])
	})
}

func TestWithdraw_Failures(t *testing.T) {
	t.Run("missing state", func(t *testing.T) {
		h := newTestServer(t, newTestConfig(), pendingrepo.NewInMemoryRepo())
		rec := do(t, h, httptest.NewRequest(http.MethodPost, server.RouteStore, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "PROXY: No state provided. Please provide a state parameter.", decodeBody(t, rec)["error"])
	})

	t.Run("nothing stored", func(t *testing.T) {
		h := newTestServer(t, newTestConfig(), pendingrepo.NewInMemoryRepo())
		rec := withdrawJSON(t, h, "s1")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "PROXY: No auth code stored in proxy.", decodeBody(t, rec)["error"])
	})

	t.Run("state mismatch", func(t *testing.T) {
		h := newTestServer(t, newTestConfig(), pendingrepo.NewInMemoryRepo())
		deposit(t, h, url.Values{"code": {"abc"}, "state": {"s1"}})
		rec := withdrawJSON(t, h, "s2")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "PROXY: State mismatch. Please ensure you are using the correct state parameter.", decodeBody(t, rec)["error"])
		require.Equal(t, server.ReasonStateMismatch, decodeBody(t, rec)["reason"])
	})

	t.Run("provider error", func(t *testing.T) {
		h := newTestServer(t, newTestConfig(), pendingrepo.NewInMemoryRepo())
		rec := deposit(t, h, url.Values{"error": {"access_denied"}, "state": {"s1"}})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Authorization error stored!", rec.Body.String())

		rec = withdrawJSON(t, h, "s1")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "access_denied", decodeBody(t, rec)["error"])
		require.Equal(t, server.ReasonProviderError, decodeBody(t, rec)["reason"])
	})
}

func TestDeposit_MissingParameters(t *testing.T) {
	h := newTestServer(t, newTestConfig(), pendingrepo.NewInMemoryRepo())

	for name, params := range map[string]url.Values{
		"no code":  {"state": {"s1"}},
		"no state": {"code": {"abc"}},
		"nothing":  {},
	} {
		t.Run(name, func(t *testing.T) {
			rec := deposit(t, h, params)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t,
				"PROXY: No code or state provided. Please ensure you are using the correct redirect URL.",
				decodeBody(t, rec)["error"])
		})
	}
}

func TestSingleSlotOverwrite(t *testing.T) {
	cfg := newTestConfig()
	cfg.ConsumeOnWithdraw = false
	h := newTestServer(t, cfg, pendingrepo.NewSlotRepo())

	deposit(t, h, url.Values{"code": {"abc"}, "state": {"s1"}})
	deposit(t, h, url.Values{"code": {"xyz"}, "state": {"s2"}})

	rec := withdrawJSON(t, h, "s1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody(t, rec)["error"], "State mismatch")

	rec = withdrawJSON(t, h, "s2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "xyz", decodeBody(t, rec)["code"])
}

func TestDepositMethodPost(t *testing.T) {
	cfg := newTestConfig()
	cfg.DepositMethod = http.MethodPost
	h := newTestServer(t, cfg, pendingrepo.NewInMemoryRepo())

	req := httptest.NewRequest(http.MethodPost, server.RouteStore, strings.NewReader("code=abc&state=s1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Code stored!", rec.Body.String())

	rec = do(t, h, httptest.NewRequest(http.MethodGet, server.RouteStore+"?state=s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abc", decodeBody(t, rec)["code"])
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, newTestConfig(), pendingrepo.NewInMemoryRepo())
	rec := do(t, h, httptest.NewRequest(http.MethodPut, server.RouteStore, nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHeadDoesNotDepositOrWithdraw(t *testing.T) {
	for _, depositMethod := range []string{http.MethodGet, http.MethodPost} {
		t.Run(depositMethod, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.DepositMethod = depositMethod
			repo := pendingrepo.NewInMemoryRepo()
			h := newTestServer(t, cfg, repo)

			require.NoError(t, repo.Upsert(context.Background(), &pendingrepo.PendingAuthorization{State: "s1", Code: "abc"}))

			rec := do(t, h, httptest.NewRequest(http.MethodHead, server.RouteStore+"?code=xyz&state=s1", nil))
			require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			require.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Allow"))

			got, err := repo.Get(context.Background(), "s1")
			require.NoError(t, err)
			require.Equal(t, "abc", got.Code)
		})
	}
}

func TestCors(t *testing.T) {
	cfg := newTestConfig()
	cfg.Origins = []string{"https://pico.example"}
	h := newTestServer(t, cfg, pendingrepo.NewInMemoryRepo())

	t.Run("allowed preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteStore, nil)
		req.Header.Set("Origin", "https://pico.example")
		rec := do(t, h, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "https://pico.example", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, server.RouteStore, nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := do(t, h, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowed withdraw", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, server.RouteStore+"?state=s1", nil)
		req.Header.Set("Origin", "https://pico.example")
		rec := do(t, h, req)
		require.Equal(t, "https://pico.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, newTestConfig(), pendingrepo.NewInMemoryRepo())

	rec := withdrawJSON(t, h, "s1")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodPost, server.RouteStore+"?state=s1", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec = do(t, h, req)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

type failingRepo struct {
	pendingrepo.Repo
}

func (failingRepo) Upsert(context.Context, *pendingrepo.PendingAuthorization) error {
	return errors.New("disk on fire")
}

func (failingRepo) Take(context.Context, string) (*pendingrepo.PendingAuthorization, error) {
	return nil, errors.New("disk on fire")
}

func TestStorageFailure(t *testing.T) {
	h := newTestServer(t, newTestConfig(), failingRepo{})

	rec := deposit(t, h, url.Values{"code": {"abc"}, "state": {"s1"}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "PROXY: Internal error. Please try again.", decodeBody(t, rec)["error"])
	require.NotContains(t, rec.Body.String(), "disk on fire")

	rec = withdrawJSON(t, h, "s1")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
