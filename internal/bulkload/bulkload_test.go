package bulkload

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/nosqld/nosqld/internal/engine"
	"github.com/nosqld/nosqld/internal/repl"
	"github.com/nosqld/nosqld/internal/server"
	"github.com/nosqld/nosqld/internal/snapshot"
)

func startTestServer(t *testing.T) repl.Client {
	t.Helper()

	eng := engine.NewEngine(engine.Options{TotalMemorySize: 1 << 16, IndexSize: 1 << 13, CacheSize: 64}, 16)
	t.Cleanup(eng.Close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	srv := server.New(ln, eng, snapshot.Disk{LockTimeoutDisabled: true}, false)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	return repl.Client{Addr: ln.Addr().String()}
}

func TestLoadStreamsDistinctKeys(t *testing.T) {
	client := startTestServer(t)
	input := "k1\tv1\nk2\tv2\nk3\tv3\n"

	stats, err := Load(client, strings.NewReader(input), &strings.Builder{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.Loaded != 3 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want Loaded=3 Failed=0", stats)
	}

	for _, k := range []string{"k1", "k2", "k3"} {
		code, body, err := client.Do("GET", "nosql/"+k, "")
		if err != nil || code != 200 {
			t.Fatalf("GET(%q) = (%d, %v)", k, code, err)
		}
		want := "v" + k[1:]
		if body != want {
			t.Fatalf("GET(%q) = %q, want %q", k, body, want)
		}
	}
}

func TestLoadFoldsDuplicatesToLatestValue(t *testing.T) {
	client := startTestServer(t)
	input := "dup\tfirst\ndup\tsecond\n"

	stats, err := Load(client, strings.NewReader(input), &strings.Builder{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.Loaded != 2 {
		t.Fatalf("stats.Loaded = %d, want 2", stats.Loaded)
	}

	_, body, err := client.Do("GET", "nosql/dup", "")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if body != "second" {
		t.Fatalf("GET(dup) = %q, want second", body)
	}
}

func TestLoadSkipsCommentAndBlankLines(t *testing.T) {
	client := startTestServer(t)
	input := "# this is a header\n\nk1\tv1\n# another comment\nk2\tv2\n"

	stats, err := Load(client, strings.NewReader(input), &strings.Builder{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.Lines != 2 || stats.Loaded != 2 {
		t.Fatalf("stats = %+v, want Lines=2 Loaded=2", stats)
	}
}

func TestLoadReportsMalformedLines(t *testing.T) {
	client := startTestServer(t)
	input := "no-tab-here\nk\tv\n"

	var errBuf strings.Builder
	stats, err := Load(client, strings.NewReader(input), &errBuf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.Failed != 1 || stats.Loaded != 1 {
		t.Fatalf("stats = %+v, want Failed=1 Loaded=1", stats)
	}
	if !strings.Contains(errBuf.String(), "malformed") {
		t.Fatalf("expected a malformed-line diagnostic, got %q", errBuf.String())
	}
}
