// Package proxy routes sandbox subdomain traffic to the container's host
// port and passes everything else to the orchestrator's own handler.
package proxy

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trainbox/orchestrator/internal/activity"
	"github.com/trainbox/orchestrator/internal/clock"
	"github.com/trainbox/orchestrator/internal/logging"
	"github.com/trainbox/orchestrator/internal/metrics"
	"github.com/trainbox/orchestrator/internal/store"
)

// dialTimeout bounds connection establishment to a sandbox.
const dialTimeout = 10 * time.Second

// Handler is the outer HTTP handler on the single listener. Requests whose
// hostname carries a sandbox subdomain are reverse-proxied; the rest fall
// through to next.
type Handler struct {
	store    *store.Store
	activity *activity.Tracker
	clock    clock.Clock
	log      *logging.Logger
	next     http.Handler

	transport http.RoundTripper
}

// New creates a Handler. timeout applies to upstream response headers and
// idle pooled connections, not to an established byte stream, so upgraded
// WebSocket connections survive it.
func New(s *store.Store, act *activity.Tracker, clk clock.Clock, log *logging.Logger, timeout time.Duration, next http.Handler) *Handler {
	return &Handler{
		store:    s,
		activity: act,
		clock:    clk,
		log:      log,
		next:     next,
		transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       timeout,
			MaxIdleConnsPerHost:   32,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subdomain, ok := sandboxSubdomain(r.Host)
	if !ok {
		h.next.ServeHTTP(w, r)
		return
	}

	rec, err := h.store.GetBySubdomainRunning(subdomain)
	if err != nil {
		metrics.ProxyRequestsTotal.WithLabelValues("4xx").Inc()
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":     "Container not found or not running",
			"subdomain": subdomain,
		})
		return
	}

	h.activity.Touch(subdomain, h.clock.Now())
	h.forward(w, r, rec)
}

// forward reverse-proxies one request to the sandbox's host port. The
// original Host header is preserved and the standard forwarded chain
// added; bodies stream in both directions.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, rec store.ContainerRecord) {
	target := &url.URL{Scheme: "http", Host: net.JoinHostPort("127.0.0.1", rec.HostPort)}
	rp := &httputil.ReverseProxy{
		Transport:     h.transport,
		FlushInterval: -1,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			h.log.Warn("sandbox upstream error", "subdomain", rec.Subdomain, "target", target.Host, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":   "Proxy error",
				"message": err.Error(),
			})
		},
	}

	start := h.clock.Now()
	sw := &statusWriter{ResponseWriter: w}
	rp.ServeHTTP(sw, r)
	metrics.ProxyDuration.Observe(h.clock.Since(start).Seconds())
	if sw.status != 0 {
		metrics.ProxyRequestsTotal.WithLabelValues(codeClass(sw.status)).Inc()
	}
}

// sandboxSubdomain extracts the leftmost hostname label when the hostname
// has at least three labels and the label is a canonical UUIDv4. Anything
// else is orchestrator traffic.
func sandboxSubdomain(host string) (string, bool) {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return "", false
	}
	candidate := labels[0]
	if len(candidate) != 36 {
		return "", false
	}
	u, err := uuid.Parse(candidate)
	if err != nil || u.Version() != 4 {
		return "", false
	}
	return candidate, true
}

func codeClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusWriter records the status code while staying hijackable for
// WebSocket upgrades.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flush and Hijack on the
// underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
