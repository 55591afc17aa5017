package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupiduntilnot/investbot/internal/chat"
	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	"github.com/stupiduntilnot/investbot/internal/dummy"
)

func newTestServer(t *testing.T, script string) (*httptest.Server, *ctxpkg.Store, *dummy.Provider) {
	t.Helper()
	provider, err := dummy.NewProvider("dummy", script)
	require.NoError(t, err)
	store := ctxpkg.NewStore("system", ctxpkg.Window{MaxMessages: 10, PinSystem: true})
	svc := chat.NewService(store, provider, dummy.DefaultQuotes())
	srv := httptest.NewServer(NewServer(svc, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, store, provider
}

func postJSON(t *testing.T, url, body string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHome(t *testing.T) {
	srv, _, _ := newTestServer(t, "ok")

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, Banner, string(body))
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, "ok")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestChat_Stateless(t *testing.T) {
	srv, store, provider := newTestServer(t, "msg:stocks rallied")

	status, out := postJSON(t, srv.URL+"/", `{"message":"news?"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "stocks rallied", out["response"])
	assert.Equal(t, 0, store.Users())

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 2)
}

func TestChat_WithUserKeepsHistory(t *testing.T) {
	srv, store, _ := newTestServer(t, "ok")

	status, out := postJSON(t, srv.URL+"/", `{"message":"hi","user_id":"42"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dummy-ok", out["response"])
	assert.Equal(t, 3, store.Len("web:42"))

	status, out = postJSON(t, srv.URL+"/", `{"message":"/price ZZZZ","user_id":"42"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, out["response"], "ZZZZ")
	assert.Equal(t, 3, store.Len("web:42"))
}

func TestChat_CompletionFailure(t *testing.T) {
	srv, _, _ := newTestServer(t, "err:provider_api")

	status, out := postJSON(t, srv.URL+"/", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, out["error"], "provider_api")

	status, out = postJSON(t, srv.URL+"/", `{"message":"hi","user_id":"1"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.NotEmpty(t, out["error"])
}

func TestChat_BlankMessageWithUser(t *testing.T) {
	srv, store, provider := newTestServer(t, "ok")

	for _, body := range []string{`{"user_id":"42"}`, `{"message":"  \n","user_id":"42"}`} {
		status, out := postJSON(t, srv.URL+"/", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, "message is required", out["error"], body)
	}
	assert.Empty(t, provider.Calls())
	assert.Equal(t, 0, store.Len("web:42"))
}

func TestChat_InvalidJSON(t *testing.T) {
	srv, _, provider := newTestServer(t, "ok")

	status, out := postJSON(t, srv.URL+"/", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, out["error"], "invalid JSON")
	assert.Empty(t, provider.Calls())
}

func TestUnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t, "ok")

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "up")
		}), slogDiscard())
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
