// Package server implements C10: a minimal HTTP/1.1-framed TCP listener
// that maps GET/PUT/POST/DELETE/HEAD on /nosql/<key> and POST on
// /snapshot/backup|restore to engine.Engine operations.
package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/nosqld/nosqld/internal/engine"
	"github.com/nosqld/nosqld/internal/metrics"
	"github.com/nosqld/nosqld/internal/snapshot"
)

// Server owns a TCP listener and dispatches framed requests to an Engine.
type Server struct {
	ln       net.Listener
	engine   *engine.Engine
	snap     snapshot.Store
	compress bool
}

// New wraps an already-listening net.Listener. Callers construct the
// listener themselves (net.Listen) so tests can bind to :0 and discover
// the ephemeral port.
func New(ln net.Listener, eng *engine.Engine, snap snapshot.Store, compress bool) *Server {
	return &Server{ln: ln, engine: eng, snap: snap, compress: compress}
}

// Serve accepts connections until ctx is canceled or the listener errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	go s.sampleBitmapGauge(ctx)

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handle(conn)
	}
}

// handle services exactly one request line and body, then closes the
// socket immediately after writing the response.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	connID := uuid.NewString()
	req, err := parseRequest(conn)
	if err != nil {
		klog.V(2).Infof("conn %s: malformed request: %v", connID, err)
		writeResponse(conn, 501, nil)
		return
	}

	start := time.Now()
	code, body := s.dispatch(req)
	metrics.OpLatencyHistogram.WithLabelValues(req.method).Observe(time.Since(start).Seconds())
	metrics.OpsByVerbAndResult.WithLabelValues(req.method, strconv.Itoa(code)).Inc()
	klog.V(4).Infof("conn %s: %s %s -> %d", connID, req.method, req.rawPath, code)

	writeResponse(conn, code, body)
}

// sampleBitmapGauge periodically refreshes the bitmap occupancy gauge.
// Stat() walks the whole bitmap, so this runs on a timer rather than per
// request.
func (s *Server) sampleBitmapGauge(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if st, err := s.engine.Stat(); err == nil {
				metrics.BitmapBusySlots.Set(float64(st.SlotsBusy))
			}
		}
	}
}

func (s *Server) dispatch(req request) (int, []byte) {
	switch req.plugin {
	case "nosql":
		return s.dispatchNosql(req)
	case "snapshot":
		return s.dispatchSnapshot(req)
	default:
		return 501, nil
	}
}

func (s *Server) dispatchNosql(req request) (int, []byte) {
	key := []byte(req.param)
	switch req.method {
	case "HEAD":
		ok, err := s.engine.Has(key)
		if err != nil {
			return 500, []byte(err.Error())
		}
		if !ok {
			return 404, nil
		}
		return 200, nil

	case "GET":
		v, err := s.engine.GetObserved(key, func(hit bool) {
			if hit {
				metrics.CacheHits.Inc()
			} else {
				metrics.CacheMisses.Inc()
			}
		})
		if err != nil {
			if isNotFound(err) {
				return 404, nil
			}
			return 500, []byte(err.Error())
		}
		return 200, v

	case "PUT", "POST":
		// Both verbs resolve to the same delete-then-insert Set semantics;
		// see engine.Store.Set.
		if err := s.engine.Set(key, req.body); err != nil {
			return 500, []byte(err.Error())
		}
		return 200, nil

	case "DELETE":
		deleted, err := s.engine.Delete(key)
		if err != nil {
			return 500, []byte(err.Error())
		}
		if !deleted {
			return 404, nil
		}
		return 200, nil

	default:
		return 501, nil
	}
}

func (s *Server) dispatchSnapshot(req request) (int, []byte) {
	if req.method != "POST" {
		return 501, nil
	}

	path := strings.TrimSpace(string(req.body))
	if path == "" {
		return 500, []byte("snapshot path must not be empty")
	}

	switch req.param {
	case "backup":
		var saveErr error
		err := s.engine.Snapshot(func(buf []byte) {
			saveErr = s.snap.Save(path, buf, s.compress)
		})
		if err != nil {
			metrics.SnapshotOps.WithLabelValues("backup", "error").Inc()
			return 500, []byte(err.Error())
		}
		if saveErr != nil {
			metrics.SnapshotOps.WithLabelValues("backup", "error").Inc()
			return 500, []byte(saveErr.Error())
		}
		metrics.SnapshotOps.WithLabelValues("backup", "ok").Inc()
		return 200, nil

	case "restore":
		buf, err := s.snap.Load(path)
		if err != nil {
			metrics.SnapshotOps.WithLabelValues("restore", "error").Inc()
			return 500, []byte(err.Error())
		}
		if err := s.engine.LoadSnapshot(buf); err != nil {
			metrics.SnapshotOps.WithLabelValues("restore", "error").Inc()
			return 500, []byte(err.Error())
		}
		metrics.SnapshotOps.WithLabelValues("restore", "ok").Inc()
		return 200, nil

	default:
		return 501, nil
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, engine.ErrNotFound)
}

// request is the parsed request line plus body.
type request struct {
	method  string
	rawPath string
	plugin  string
	param   string
	body    []byte
}

// parseRequest reads a request-line-only HTTP/1.1 frame: the request
// line, any number of ignored header lines, a blank line, then the body
// runs to EOF.
func parseRequest(conn net.Conn) (request, error) {
	r := bufio.NewReader(conn)

	line, err := r.ReadString('\n')
	if err != nil {
		return request{}, fmt.Errorf("server: reading request line: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return request{}, fmt.Errorf("server: malformed request line %q", line)
	}
	method, rawPath := parts[0], parts[1]

	for {
		headerLine, err := r.ReadString('\n')
		if err != nil {
			break
		}
		if strings.TrimRight(headerLine, "\r\n") == "" {
			break
		}
	}

	var body bytes.Buffer
	_, _ = body.ReadFrom(r)

	plugin, param := splitPath(rawPath)

	return request{
		method:  method,
		rawPath: rawPath,
		plugin:  plugin,
		param:   param,
		body:    body.Bytes(),
	}, nil
}

// splitPath strips the leading "/", splits on the first remaining "/"
// into plugin and param, and strips an optional "?..." query suffix from
// param.
func splitPath(rawPath string) (plugin, param string) {
	p := strings.TrimPrefix(rawPath, "/")
	idx := strings.IndexByte(p, '/')
	if idx < 0 {
		return p, ""
	}
	plugin = p[:idx]
	param = p[idx+1:]
	if q := strings.IndexByte(param, '?'); q >= 0 {
		param = param[:q]
	}
	return plugin, param
}

var reasonPhrases = map[int]string{
	200: "OK",
	404: "Not Found",
	500: "Internal Server Error",
	501: "Not Implemented",
}

func writeResponse(conn net.Conn, code int, body []byte) {
	reason, ok := reasonPhrases[code]
	if !ok {
		reason = "Unknown"
	}
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\n\r\n", code, reason)
	if len(body) > 0 {
		conn.Write(body)
	}
}
