package server

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nosqld/nosqld/internal/engine"
	"github.com/nosqld/nosqld/internal/snapshot"
)

func startTestServer(t *testing.T) (addr string, eng *engine.Engine) {
	t.Helper()

	eng = engine.NewEngine(engine.Options{TotalMemorySize: 1 << 16, IndexSize: 1 << 13, CacheSize: 64}, 16)
	t.Cleanup(eng.Close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	snap := snapshot.Disk{LockTimeoutDisabled: true}
	srv := New(ln, eng, snap, false)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	return ln.Addr().String(), eng
}

// roundTrip dials addr, sends a raw request-line-framed request, and
// returns the parsed status code and body.
func roundTrip(t *testing.T, addr, method, path, body string) (int, string) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	fmt.Fprintf(conn, "%s /%s HTTP/1.1\r\nHost: x\r\n\r\n%s", method, path, body)
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}

	r := bufio.NewReader(conn)
	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("reading status line: %v", err)
	}
	var code int
	fmt.Sscanf(statusLine, "HTTP/1.1 %d", &code)

	for {
		line, err := r.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return code, buf.String()
}

func TestServerNosqlRoundTrip(t *testing.T) {
	addr, _ := startTestServer(t)

	if code, _ := roundTrip(t, addr, "GET", "nosql/key1", ""); code != 404 {
		t.Fatalf("GET before set: code = %d, want 404", code)
	}
	if code, _ := roundTrip(t, addr, "POST", "nosql/key1", "hello"); code != 200 {
		t.Fatalf("POST: code = %d, want 200", code)
	}
	if code, body := roundTrip(t, addr, "GET", "nosql/key1", ""); code != 200 || body != "hello" {
		t.Fatalf("GET after set: (%d, %q), want (200, hello)", code, body)
	}
	if code, _ := roundTrip(t, addr, "HEAD", "nosql/key1", ""); code != 200 {
		t.Fatalf("HEAD: code = %d, want 200", code)
	}
	if code, _ := roundTrip(t, addr, "DELETE", "nosql/key1", ""); code != 200 {
		t.Fatalf("DELETE: code = %d, want 200", code)
	}
	if code, _ := roundTrip(t, addr, "GET", "nosql/key1", ""); code != 404 {
		t.Fatalf("GET after delete: code = %d, want 404", code)
	}
}

func TestServerPutAndPostAreEquivalent(t *testing.T) {
	addr, _ := startTestServer(t)

	roundTrip(t, addr, "PUT", "nosql/k", "v1")
	roundTrip(t, addr, "POST", "nosql/k", "v2")

	if code, body := roundTrip(t, addr, "GET", "nosql/k", ""); code != 200 || body != "v2" {
		t.Fatalf("GET after PUT,POST: (%d, %q), want (200, v2)", code, body)
	}
}

func TestServerUnknownPluginReturns501(t *testing.T) {
	addr, _ := startTestServer(t)

	if code, _ := roundTrip(t, addr, "GET", "bogus/thing", ""); code != 501 {
		t.Fatalf("code = %d, want 501", code)
	}
}

func TestServerSnapshotBackupAndRestore(t *testing.T) {
	addr, eng := startTestServer(t)
	path := filepath.Join(t.TempDir(), "test.snap")

	roundTrip(t, addr, "POST", "nosql/durable-key", "durable-value")

	if code, _ := roundTrip(t, addr, "POST", "snapshot/backup", path); code != 200 {
		t.Fatalf("backup: code = %d, want 200", code)
	}

	if _, err := eng.Delete([]byte("durable-key")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if code, _ := roundTrip(t, addr, "GET", "nosql/durable-key", ""); code != 404 {
		t.Fatalf("GET after delete: code = %d, want 404", code)
	}

	if code, _ := roundTrip(t, addr, "POST", "snapshot/restore", path); code != 200 {
		t.Fatalf("restore: code = %d, want 200", code)
	}
	if code, body := roundTrip(t, addr, "GET", "nosql/durable-key", ""); code != 200 || body != "durable-value" {
		t.Fatalf("GET after restore: (%d, %q), want (200, durable-value)", code, body)
	}
}
