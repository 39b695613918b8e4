package preflight

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"batchcursor/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCollectionAccess(t *testing.T) {
	dir := testsupport.WriteImages(t, "a.png")
	if result := CheckCollectionAccess(dir); !result.Passed {
		t.Fatalf("directory: %s", result.Detail)
	}

	manifest := filepath.Join(t.TempDir(), "shots.yaml")
	testsupport.WriteFile(t, manifest, []byte("items:\n  - path: "+filepath.Join(dir, "a.png")+"\n"))
	if result := CheckCollectionAccess(manifest); !result.Passed {
		t.Fatalf("manifest: %s", result.Detail)
	}

	other := filepath.Join(t.TempDir(), "image.png")
	testsupport.WriteImage(t, other)
	if result := CheckCollectionAccess(other); result.Passed {
		t.Fatal("expected failure for a plain image file")
	}
	if result := CheckCollectionAccess("  "); result.Passed {
		t.Fatal("expected failure for blank collection")
	}
}

func TestCheckExecCommand(t *testing.T) {
	if result := CheckExecCommand("sh -c true"); !result.Passed {
		t.Fatalf("sh should resolve: %s", result.Detail)
	}
	if result := CheckExecCommand("definitely-not-a-real-binary-xyz {}"); result.Passed {
		t.Fatal("expected failure for missing binary")
	}
	if result := CheckExecCommand(""); result.Passed {
		t.Fatal("expected failure for empty command")
	}
}

func TestCheckScheduler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if result := CheckScheduler(context.Background(), srv.URL, "good"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := CheckScheduler(context.Background(), srv.URL, "bad")
	if result.Passed || result.Detail != "auth failed (invalid token)" {
		t.Fatalf("expected auth failure, got %+v", result)
	}
	if result := CheckScheduler(context.Background(), "", ""); result.Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestCheckTraceCollector(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	defer listener.Close()

	if result := CheckTraceCollector(context.Background(), "http://"+addr); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckTraceCollector(context.Background(), addr); !result.Passed {
		t.Fatalf("bare host:port: %s", result.Detail)
	}
	listener.Close()
	if result := CheckTraceCollector(context.Background(), addr); result.Passed {
		t.Fatal("expected failure after listener closed")
	}
}

func TestRunAllGatesChecksOnConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results := RunAll(context.Background(), cfg)
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("results = %+v", results)
	}

	cfg.Iteration.Step = "exec"
	cfg.Iteration.ExecCommand = "missing-binary-xyz"
	results = RunAll(context.Background(), cfg, testsupport.WriteImages(t, "a.png"))
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %+v", results)
	}
	if !Failed(results) {
		t.Fatal("expected exec check to fail")
	}

	cfg.Iteration.Step = "save"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	results = RunAll(context.Background(), cfg)
	if len(results) != 2 || results[1].Name != "Output directory" || !results[1].Passed {
		t.Fatalf("save step results = %+v", results)
	}
}
