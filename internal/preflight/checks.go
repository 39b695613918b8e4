package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"batchcursor/internal/source"
	"batchcursor/internal/state"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCollectionAccess verifies a collection key resolves to a readable
// directory or manifest file.
func CheckCollectionAccess(collection string) Result {
	const name = "Collection"

	key, err := state.NormalizeKey(collection)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%q (error: %v)", collection, err)}
	}
	info, err := os.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", key)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", key, err)}
	}

	mode := uint32(unix.R_OK)
	kind := "manifest"
	if info.IsDir() {
		mode |= unix.X_OK
		kind = "directory"
	} else if !source.IsManifest(key) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a directory or manifest)", key)}
	}
	if err := unix.Access(key, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", key, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s readable)", key, kind)}
}

// CheckExecCommand verifies the exec step's program resolves on PATH.
func CheckExecCommand(command string) Result {
	const name = "Exec command"

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Result{Name: name, Detail: "missing command"}
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not found on PATH)", fields[0])}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckScheduler verifies the continuation target answers HTTP and accepts
// the configured token. Any response other than 401/403 or a 5xx counts as
// reachable, since the control endpoints only accept POST.
func CheckScheduler(ctx context.Context, baseURL, token string) Result {
	const name = "Scheduler"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/continue", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid token)"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return Result{Name: name, Detail: fmt.Sprintf("unhealthy (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
}

// CheckTraceCollector verifies a TCP connection to the OTLP endpoint.
func CheckTraceCollector(ctx context.Context, endpoint string) Result {
	const name = "Trace collector"

	host := strings.TrimSpace(endpoint)
	if parsed, err := url.Parse(host); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	if host == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}

	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: host + " (reachable)"}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out (unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
