package daemonctl

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"batchcursor/internal/daemonclient"
	"batchcursor/internal/testsupport"
)

func closedAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return addr
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	if pid, err := ReadPID(filepath.Join(dir, "missing.pid")); err != nil || pid != 0 {
		t.Fatalf("missing file: %d, %v", pid, err)
	}

	path := filepath.Join(dir, "d.pid")
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, err := ReadPID(path); err != nil || pid != 4242 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected error for garbage pid")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := daemonclient.New("http://"+closedAddress(t), "")
	if _, err := StopAndTerminate(context.Background(), client, cfg, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestWaitForShutdownWhenUnavailable(t *testing.T) {
	client := daemonclient.New("http://"+closedAddress(t), "")
	if err := WaitForShutdown(context.Background(), client, time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestWaitForAPITimesOut(t *testing.T) {
	client := daemonclient.New("http://"+closedAddress(t), "")
	if _, err := WaitForAPI(context.Background(), client, 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch("  ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}
