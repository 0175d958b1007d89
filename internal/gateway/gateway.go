// Package gateway implements the simulator's admin/inspect HTTP surface
// (spec.md's supplement 4.12): per-worker host listing, a socket table
// dump per host, and the Prometheus /metrics endpoint.
//
// This plays the role controlplane/internal/gateway's gRPC proxy plays
// for YANET modules, adapted to plain HTTP+JSON: the gRPC message types
// that gateway depends on (ynpb.*Request/*Response) were not present in
// the retrieval pack, which kept only the generated *_grpc.pb.go service
// stubs without their accompanying message-type .pb.go files or a
// .proto source to regenerate from (see DESIGN.md). Its Run/graceful-
// shutdown shape is otherwise grounded directly on that package's own
// runHTTPServer.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/worker"
)

// Config is the gateway's static configuration. Peers names sibling
// vnet-worker gateways (a multi-process deployment splits hosts across
// worker processes, each exposing its own gateway) that /cluster/hosts
// fans out to for a combined view.
type Config struct {
	Endpoint string
	Peers    []string
}

// Gateway serves the simulator's admin/inspect HTTP surface.
type Gateway struct {
	cfg    Config
	pool   *worker.Pool
	log    *zap.SugaredLogger
	server *http.Server
	client *http.Client
}

// New builds a Gateway over pool's workers; pool must already be
// constructed (every worker's hosts registered) before Run is called.
func New(cfg Config, pool *worker.Pool, log *zap.SugaredLogger) *Gateway {
	g := &Gateway{cfg: cfg, pool: pool, log: log, client: &http.Client{Timeout: 2 * time.Second}}
	mux := http.NewServeMux()
	mux.HandleFunc("/hosts", g.handleHosts)
	mux.HandleFunc("/hosts/", g.handleHostSockets)
	mux.HandleFunc("/cluster/hosts", g.handleClusterHosts)
	mux.Handle("/metrics", promhttp.Handler())
	g.server = &http.Server{Addr: cfg.Endpoint, Handler: mux}
	return g
}

// Run serves the admin HTTP surface until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", g.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("gateway: failed to listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.server.Shutdown(shutdownCtx); err != nil {
			g.log.Warnw("failed to shut down gateway", "error", err)
		}
	}()

	g.log.Infow("exposing admin gateway", "addr", listener.Addr())
	if err := g.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: serve failed: %w", err)
	}
	return nil
}

type hostEntry struct {
	Worker uint32 `json:"worker"`
	Addr   string `json:"addr"`
}

func (g *Gateway) handleHosts(w http.ResponseWriter, r *http.Request) {
	var hosts []hostEntry
	for _, wk := range g.pool.Workers {
		for _, a := range wk.Addrs() {
			hosts = append(hosts, hostEntry{Worker: wk.ID, Addr: a.String()})
		}
	}
	writeJSON(w, hosts)
}

// handleClusterHosts merges this process's own /hosts with every
// configured peer's, tolerating a peer that is slow to come up (common
// right after the whole cluster restarts together) by retrying its dial
// with backoff before giving up on that one peer.
func (g *Gateway) handleClusterHosts(w http.ResponseWriter, r *http.Request) {
	var hosts []hostEntry
	for _, wk := range g.pool.Workers {
		for _, a := range wk.Addrs() {
			hosts = append(hosts, hostEntry{Worker: wk.ID, Addr: a.String()})
		}
	}
	for _, peer := range g.cfg.Peers {
		peerHosts, err := g.dialPeerHosts(r.Context(), peer)
		if err != nil {
			g.log.Warnw("peer gateway unreachable, omitting from cluster view", "peer", peer, "error", err)
			continue
		}
		hosts = append(hosts, peerHosts...)
	}
	writeJSON(w, hosts)
}

// dialPeerHosts fetches peer's /hosts, retrying a transient dial/response
// failure with exponential backoff, grounded on modules/route/bird-adapter's
// reconnect policy for its own upstream control-plane stream.
func (g *Gateway) dialPeerHosts(ctx context.Context, peer string) ([]hostEntry, error) {
	return backoff.Retry(ctx, func() ([]hostEntry, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/hosts", peer), nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("peer %s returned %s", peer, resp.Status)
		}
		var peerHosts []hostEntry
		if err := json.NewDecoder(resp.Body).Decode(&peerHosts); err != nil {
			return nil, backoff.Permanent(err)
		}
		return peerHosts, nil
	}, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

func (g *Gateway) handleHostSockets(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/hosts/"):]
	const suffix = "/sockets"
	if len(rest) <= len(suffix) || rest[len(rest)-len(suffix):] != suffix {
		http.NotFound(w, r)
		return
	}
	addrStr := rest[:len(rest)-len(suffix)]

	a, ok := findHostAddr(g.pool, addrStr)
	if !ok {
		http.Error(w, "unknown host", http.StatusNotFound)
		return
	}

	for _, wk := range g.pool.Workers {
		h, ok := wk.Host(a)
		if !ok {
			continue
		}
		h.Lock()
		snapshot := h.Sockets.Snapshot()
		h.Unlock()
		writeJSON(w, snapshot)
		return
	}
	http.Error(w, "unknown host", http.StatusNotFound)
}

// findHostAddr matches addrStr against every owned host's String() form,
// since addr.Addr has no parser of its own (spec.md's address space is an
// opaque 32-bit scheme, not a dotted-quad one a client would type by hand).
func findHostAddr(pool *worker.Pool, addrStr string) (addr.Addr, bool) {
	for _, wk := range pool.Workers {
		for _, a := range wk.Addrs() {
			if a.String() == addrStr {
				return a, true
			}
		}
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
