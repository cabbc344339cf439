package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/presencectl/internal/activity"
	"github.com/danmuck/presencectl/internal/config"
	"github.com/danmuck/presencectl/internal/logging"
	"github.com/danmuck/presencectl/internal/presence"
	"github.com/danmuck/presencectl/internal/protocol"
	"github.com/danmuck/presencectl/internal/protocol/frame"
	"github.com/danmuck/presencectl/internal/protocol/session"
	"github.com/danmuck/presencectl/internal/testutil/ipctest"
	"github.com/danmuck/presencectl/internal/testutil/testlog"
	"github.com/danmuck/presencectl/internal/transport"
	"github.com/danmuck/presencectl/internal/transport/blocking"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv(config.EnvClientID, "")
	t.Setenv(logging.EnvLogLevel, "error")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitStdoutLoads(t *testing.T) {
	testlog.Start(t)
	out, err := execute(t, "--client-id", "1234567890", "config", "init", "--stdout")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "client_id = '1234567890'") && !strings.Contains(out, `client_id = "1234567890"`) {
		t.Fatalf("template missing client id:\n%s", out)
	}
	path := filepath.Join(t.TempDir(), "rendered.toml")
	if err := os.WriteFile(path, []byte(out), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load rendered: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("rendered template invalid: %v", err)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if _, err := execute(t, "config", "init", "--out", path); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, err := execute(t, "config", "init", "--out", path); err == nil {
		t.Fatalf("expected refusal to overwrite %s", path)
	}
	if _, err := execute(t, "config", "init", "--out", path, "--force"); err != nil {
		t.Fatalf("forced init: %v", err)
	}
}

func TestConfigValidateExample(t *testing.T) {
	testlog.Start(t)
	out, err := execute(t, "config", "validate", "ex.config.toml")
	if err != nil {
		t.Fatalf("validate example: %v", err)
	}
	if !strings.Contains(out, "transport=async") {
		t.Fatalf("validate output got=%q", out)
	}
}

func TestConfigValidateFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	if _, err := execute(t, "--config", "ex.config.toml", "--transport", "carrier-pigeon", "config", "validate"); err == nil {
		t.Fatalf("expected unknown transport to fail validation")
	}
	if _, err := execute(t, "--client-id", "", "config", "validate"); err == nil {
		t.Fatalf("expected missing client id to fail validation")
	}
}

func TestParseButtons(t *testing.T) {
	testlog.Start(t)
	got, err := parseButtons([]string{"Site = https://example.com", "Docs=https://example.com/a=b"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0].Label != "Site" || got[1].URL != "https://example.com/a=b" {
		t.Fatalf("buttons got=%+v", got)
	}
	if _, err := parseButtons([]string{"no-separator"}); err == nil {
		t.Fatalf("expected error for missing separator")
	}
}

func TestSetPublishesOverUnixSocket(t *testing.T) {
	testlog.Start(t)
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets only")
	}
	dir, err := os.MkdirTemp("", "ipc")
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "discord-ipc-0")
	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	commands := make(chan protocol.Command, 1)
	ipctest.ServeListener(t, l, append(ipctest.Handshake("42"),
		ipctest.Reply(func(cmd protocol.Command) protocol.Response {
			commands <- cmd
			return protocol.Response{Cmd: cmd.Cmd, Nonce: cmd.Nonce, Data: json.RawMessage(`{}`)}
		}),
		ipctest.Expect(frame.OpClose, nil),
	))

	out, err := execute(t, "--client-id", "42", "--endpoint", path, "--connect-timeout", "2s",
		"set", "--state", "Playing", "--button", "Site=https://example.com", "--hold=false")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !strings.Contains(out, "published (ready via "+path) {
		t.Fatalf("set output got=%q", out)
	}
	cmd := <-commands
	if cmd.Cmd != protocol.CmdSetActivity {
		t.Fatalf("cmd got=%q", cmd.Cmd)
	}
	args, _ := json.Marshal(cmd.Args)
	if !strings.Contains(string(args), `"state":"Playing"`) || !strings.Contains(string(args), `"label":"Site"`) {
		t.Fatalf("args got=%s", args)
	}
}

func TestSetRequiresSomethingToPublish(t *testing.T) {
	testlog.Start(t)
	if _, err := execute(t, "--client-id", "42", "set"); err == nil || !strings.Contains(err.Error(), "nothing to publish") {
		t.Fatalf("expected nothing-to-publish error, got %v", err)
	}
}

func newTestRunner(tr transport.Transport) *runner {
	cfg := session.DefaultConfig()
	cfg.ClientID = "42"
	ep := transport.SocketEndpoint("/run/user/1000", 0)
	cfg.Discover = func() []transport.Endpoint { return []transport.Endpoint{ep} }
	return &runner{
		client:   presence.New(tr, cfg),
		activity: &activity.Activity{State: "Playing"},
		retry:    session.RetryConfig{MaxAttempts: 1},
		interval: config.DefaultRefreshInterval,
		logger:   logging.For("run"),
	}
}

func statusOf(t *testing.T, r *runner) (int, status) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var st status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("status body %q: %v", rec.Body.String(), err)
	}
	return rec.Code, st
}

func TestRunnerRefreshConnectsAndPublishes(t *testing.T) {
	testlog.Start(t)
	tr := ipctest.New(blocking.Wrap, append(ipctest.Handshake("42"), ipctest.Echo(2), ipctest.Expect(frame.OpClose, nil)))
	r := newTestRunner(tr)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := r.refresh(ctx); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}
	code, st := statusOf(t, r)
	if code != http.StatusOK || st.State != "ready" || st.User != "mason" {
		t.Fatalf("status code=%d body=%+v", code, st)
	}
	if len(tr.Opened()) != 1 {
		t.Fatalf("refresh reopened the connection: %d opens", len(tr.Opened()))
	}
	_ = r.client.Close()
	tr.Wait(t)
}

func TestRunnerRefreshToleratesMissingClient(t *testing.T) {
	testlog.Start(t)
	r := newTestRunner(ipctest.New(blocking.Wrap))
	if err := r.refresh(context.Background()); err != nil {
		t.Fatalf("recoverable failure must not stop the loop: %v", err)
	}
	code, st := statusOf(t, r)
	if code != http.StatusServiceUnavailable || st.State != "closed" {
		t.Fatalf("status code=%d body=%+v", code, st)
	}
}

func TestRunnerRefreshStopsOnRejectedClientID(t *testing.T) {
	testlog.Start(t)
	tr := ipctest.New(blocking.Wrap, ipctest.Script{
		ipctest.ExpectHandshake("42"),
		ipctest.Send(frame.OpFrame, ipctest.ErrorEvent(4000, "Invalid Client ID", "")),
	})
	r := newTestRunner(tr)
	err := r.refresh(context.Background())
	if code, _, ok := protocol.AsDiscordError(err); !ok || code != 4000 {
		t.Fatalf("expected discord error 4000, got %v", err)
	}
	tr.Wait(t)
}

func TestRunnerStatusAnswersWhileRefreshHoldsClient(t *testing.T) {
	testlog.Start(t)
	r := newTestRunner(ipctest.New(blocking.Wrap))
	r.mu.Lock()
	defer r.mu.Unlock()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		r.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		done <- rec
	}()
	select {
	case rec := <-done:
		if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"disconnected"`) {
			t.Fatalf("status before first refresh got=%d %s", rec.Code, rec.Body.String())
		}
	case <-time.After(time.Second):
		t.Fatalf("status blocked on the client lock")
	}
}

func TestRunnerPublishBoundedByInterval(t *testing.T) {
	testlog.Start(t)
	var cmd protocol.Command
	tr := ipctest.New(blocking.Wrap, append(ipctest.Handshake("42"), ipctest.Capture(&cmd, nil)))
	r := newTestRunner(tr)
	r.interval = 100 * time.Millisecond

	start := time.Now()
	if err := r.refresh(context.Background()); err != nil {
		t.Fatalf("unanswered publish must not stop the loop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("publish ran past its bound: %v", elapsed)
	}
	if cmd.Cmd != protocol.CmdSetActivity {
		t.Fatalf("peer saw cmd=%q", cmd.Cmd)
	}
	if _, st := statusOf(t, r); st.State != "closed" {
		t.Fatalf("status after timed out publish got=%+v", st)
	}
	tr.Wait(t)
}
