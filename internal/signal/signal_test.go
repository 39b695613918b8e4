package signal_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"batchcursor/internal/signal"
)

type recordedCall struct {
	path   string
	auth   string
	body   map[string]string
	method string
}

func newScheduler(t *testing.T, status int, reply string) (*httptest.Server, func() []recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, recordedCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body, method: r.Method})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedCall(nil), calls...)
	}
}

func TestHTTPSignalPostsInstruction(t *testing.T) {
	srv, calls := newScheduler(t, http.StatusAccepted, "")
	sig, err := signal.NewHTTPSignal(srv.URL+"/", time.Second, signal.WithBearerToken("secret"))
	if err != nil {
		t.Fatalf("NewHTTPSignal: %v", err)
	}
	if err := sig.Continue(context.Background(), "run-1"); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if err := sig.Halt(context.Background(), "run-1"); err != nil {
		t.Fatalf("Halt: %v", err)
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(got))
	}
	if got[0].path != "/continue" || got[1].path != "/halt" {
		t.Fatalf("unexpected paths %q %q", got[0].path, got[1].path)
	}
	if got[0].method != http.MethodPost {
		t.Fatalf("expected POST, got %s", got[0].method)
	}
	if got[0].auth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", got[0].auth)
	}
	if got[0].body["token"] != "run-1" || got[0].body["instruction"] != "continue" {
		t.Fatalf("unexpected body %v", got[0].body)
	}
}

func TestHTTPSignalExtractsErrorField(t *testing.T) {
	srv, calls := newScheduler(t, http.StatusConflict, `{"error":"run already halted"}`)
	sig, _ := signal.NewHTTPSignal(srv.URL, time.Second)
	err := sig.Continue(context.Background(), "run-2")
	if err == nil || !strings.Contains(err.Error(), "run already halted") || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected scheduler error message, got %v", err)
	}
	if len(calls()) != 1 {
		t.Fatalf("expected no retries, got %d calls", len(calls()))
	}
}

func TestHTTPSignalTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	sig, _ := signal.NewHTTPSignal(srv.URL, 50*time.Millisecond)
	start := time.Now()
	if err := sig.Continue(context.Background(), ""); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestNewHTTPSignalRequiresURL(t *testing.T) {
	if _, err := signal.NewHTTPSignal("  ", 0); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestLocalSignalDelivers(t *testing.T) {
	sig := signal.NewLocalSignal(2)
	if err := signal.Send(context.Background(), sig, signal.Continue, "t"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := signal.Send(context.Background(), sig, signal.None, "t"); err != nil {
		t.Fatalf("Send none: %v", err)
	}
	d := <-sig.C()
	if d.Instruction != signal.Continue || d.Token != "t" {
		t.Fatalf("unexpected delivery %+v", d)
	}
	select {
	case extra := <-sig.C():
		t.Fatalf("None should not deliver, got %+v", extra)
	default:
	}
}

func TestLocalSignalRespectsContext(t *testing.T) {
	sig := signal.NewLocalSignal(1)
	_ = sig.Halt(context.Background(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sig.Halt(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingSignal struct{ err error }

func (f failingSignal) Continue(context.Context, string) error { return f.err }
func (f failingSignal) Halt(context.Context, string) error     { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	local := signal.NewLocalSignal(1)
	multi := signal.Multi{failingSignal{errA}, local, nil, failingSignal{errB}}
	err := multi.Continue(context.Background(), "x")
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if d := <-local.C(); d.Instruction != signal.Continue {
		t.Fatalf("expected local delivery despite failures, got %+v", d)
	}
	if err := signal.Send(context.Background(), signal.Noop{}, signal.Instruction("rewind"), ""); err == nil {
		t.Fatal("expected unknown instruction error")
	}
}
