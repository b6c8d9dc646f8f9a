package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Errorf("路径应包含 bottoken/sendMessage, 实际 %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "pricealert/") {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("alerts", "token", "chat", srv.URL, time.Second, testLogger())
	require.NoError(t, notifier.Send(context.Background(), "<b>hello</b>"))

	require.Equal(t, "chat", received["chat_id"])
	require.Equal(t, "<b>hello</b>", received["text"])
	require.Equal(t, "HTML", received["parse_mode"])
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("alerts", "token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Send(context.Background(), "x")
	require.Error(t, err, "ok=false 应报错")
	require.Contains(t, err.Error(), "chat not found")
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Unauthorized"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("errors", "bad", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Send(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestSlackNotifierConvertsMarkup(t *testing.T) {
	var text, channel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		text = r.PostForm.Get("text")
		channel = r.PostForm.Get("channel")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": channel, "ts": "1714564800.000100"})
	}))
	defer srv.Close()

	notifier := NewSlackNotifier("errors", "xoxb-test", "C123", srv.URL, testLogger())
	require.NoError(t, notifier.Send(context.Background(), "<b>BTC/USDC</b> volume <u>1.00M</u> &lt;x&gt;"))

	require.Equal(t, "C123", channel)
	require.Equal(t, "*BTC/USDC* volume _1.00M_ &lt;x&gt;", text)
}

func TestSlackNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	}))
	defer srv.Close()

	notifier := NewSlackNotifier("errors", "xoxb-test", "C404", srv.URL+"/", testLogger())
	err := notifier.Send(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "channel_not_found")
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
