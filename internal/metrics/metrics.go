// Package metrics exposes the backend's operational counters over an HTTP
// /metrics endpoint. Grounded on sa6mwa-lockd's telemetry.go (its own
// prometheus.NewRegistry plus a dedicated net.Listen-backed metrics server,
// kept separate from the main RESTCONF/NETCONF listeners), trimmed down to
// plain prometheus/client_golang collectors since this repository has no
// OpenTelemetry tracing surface to bridge them through.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter and gauge the backend's components update as
// RPCs, commits and NACM checks happen.
type Registry struct {
	registry *prometheus.Registry

	SessionsOpened   prometheus.Counter
	SessionsClosed   prometheus.Counter
	SessionsActive   prometheus.Gauge
	RPCsDispatched   *prometheus.CounterVec
	Commits          prometheus.Counter
	CommitFailures   prometheus.Counter
	Rollbacks        prometheus.Counter
	NACMDenials      *prometheus.CounterVec
	ConfirmedCommits prometheus.Counter
	ConfirmedReverts prometheus.Counter
	SNMPBindings     *prometheus.CounterVec
}

// New builds a Registry with every collector registered under the ncbackend
// namespace, mirroring the per-subsystem metric naming the teacher's pack
// uses for its own lock/txn counters.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "session",
			Name:      "opened_total",
			Help:      "Total NETCONF sessions opened.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Total NETCONF sessions closed.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ncbackend",
			Subsystem: "session",
			Name:      "active",
			Help:      "Currently open NETCONF sessions.",
		}),
		RPCsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "rpc",
			Name:      "dispatched_total",
			Help:      "RPCs dispatched, labelled by operation name.",
		}, []string{"operation"}),
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "commit",
			Name:      "success_total",
			Help:      "Commits that promoted candidate into running.",
		}),
		CommitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "commit",
			Name:      "failure_total",
			Help:      "Commits that failed validation or a callback.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "commit",
			Name:      "rollback_total",
			Help:      "Commits that aborted and restored the prior running datastore.",
		}),
		NACMDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "nacm",
			Name:      "denied_total",
			Help:      "Access-control denials, labelled by access kind.",
		}, []string{"access"}),
		ConfirmedCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "confirmed",
			Name:      "started_total",
			Help:      "Confirmed commits started, pending a confirming commit.",
		}),
		ConfirmedReverts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "confirmed",
			Name:      "reverted_total",
			Help:      "Confirmed commits rolled back: timed out, cancelled, or ended with their session.",
		}),
		SNMPBindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ncbackend",
			Subsystem: "snmp",
			Name:      "bindings_total",
			Help:      "SNMP variable bindings processed, labelled by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		r.SessionsOpened,
		r.SessionsClosed,
		r.SessionsActive,
		r.RPCsDispatched,
		r.Commits,
		r.CommitFailures,
		r.Rollbacks,
		r.NACMDenials,
		r.ConfirmedCommits,
		r.ConfirmedReverts,
		r.SNMPBindings,
	)
	return r
}

// Handler returns the /metrics scrape endpoint for mounting into a larger
// router, the same split New does in internal/restconf.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Server is a standalone metrics listener, for deployments that keep
// scraping off the RESTCONF/NETCONF listen addresses entirely.
type Server struct {
	http *http.Server
	ln   net.Listener
}

// StartServer binds addr and serves r's /metrics endpoint on it, following
// telemetryBundle's pattern of a dedicated net.Listen plus *http.Server pair
// that Shutdown can tear down independently of the rest of the backend.
func StartServer(addr string, r *Registry) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux}
	go func() {
		_ = srv.Serve(ln)
	}()
	return &Server{http: srv, ln: ln}, nil
}

// Shutdown stops the metrics server, ignoring the expected post-Shutdown
// http.ErrServerClosed the teacher's own Shutdown methods filter out too.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
