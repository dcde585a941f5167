// Package oddebug serves a read-only HTTP view of a running ordering service.
package oddebug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odstore"
)

// ServiceView is the read-only subset of [*odservice.Service] the debug server uses.
type ServiceView interface {
	CurrentRound() odconsensus.Round
	StoredRounds() []odconsensus.Round
	StoredProposal(odconsensus.Round) (*odconsensus.Proposal, bool)
	ForCachedBatches(func([]odconsensus.Batch))
}

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Service ServiceView

	// Optional. Enables /txs/{hash}.
	TxStatusIndex odstore.TxStatusIndex

	// Optional. Enables /metrics.
	Gatherer prometheus.Gatherer
}

// NewHTTPServer starts serving on cfg.Listener in the background.
// The server is closed when ctx is cancelled.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: NewHandler(log, cfg),

		ReadHeaderTimeout: 5 * time.Second,

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

// Wait blocks until the server has stopped.
func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("Debug HTTP server shutting down")
		} else {
			log.Info("Debug HTTP server shutting down due to error", "err", err)
		}
	}
}

// NewHandler returns the debug routes without starting a server.
func NewHandler(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/round", handleRound(log, cfg)).Methods("GET")
	r.HandleFunc("/proposals", handleProposalRounds(log, cfg)).Methods("GET")
	r.HandleFunc("/proposals/{height:[0-9]+}/{reject:[0-9]+}", handleProposal(log, cfg)).Methods("GET")
	r.HandleFunc("/batches/pending", handlePendingBatches(log, cfg)).Methods("GET")

	if cfg.TxStatusIndex != nil {
		r.HandleFunc("/txs/{hash:[0-9a-fA-F]+}", handleTxStatus(log, cfg)).Methods("GET")
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

func handleRound(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(log, w, cfg.Service.CurrentRound())
	}
}

func handleProposalRounds(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		rounds := cfg.Service.StoredRounds()
		if rounds == nil {
			rounds = []odconsensus.Round{}
		}
		writeJSON(log, w, rounds)
	}
}

// ProposalSummary is the JSON body of /proposals/{height}/{reject}.
type ProposalSummary struct {
	Round     odconsensus.Round
	CreatedAt time.Time
	TxCount   int
	Batches   []odconsensus.BatchHash
}

func handleProposal(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		height, err := strconv.ParseUint(vars["height"], 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid height: %v", err), http.StatusBadRequest)
			return
		}
		reject, err := strconv.ParseUint(vars["reject"], 10, 32)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid reject counter: %v", err), http.StatusBadRequest)
			return
		}

		r := odconsensus.Round{Height: height, Reject: uint32(reject)}
		p, ok := cfg.Service.StoredProposal(r)
		if !ok {
			http.Error(w, fmt.Sprintf("no proposal stored for round %s", r), http.StatusNotFound)
			return
		}

		writeJSON(log, w, ProposalSummary{
			Round:     p.Round,
			CreatedAt: p.CreatedAt,
			TxCount:   p.TxCount(),
			Batches:   odconsensus.BatchHashes(p.Batches),
		})
	}
}

// PendingSummary is the JSON body of /batches/pending.
type PendingSummary struct {
	Count  int
	Hashes []odconsensus.BatchHash
}

func handlePendingBatches(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		var resp PendingSummary
		cfg.Service.ForCachedBatches(func(bs []odconsensus.Batch) {
			resp.Count = len(bs)
			resp.Hashes = odconsensus.BatchHashes(bs)
		})
		writeJSON(log, w, resp)
	}
}

// TxStatusSummary is the JSON body of /txs/{hash}.
type TxStatusSummary struct {
	Hash   odconsensus.BatchHash
	Status string
	Height uint64 `json:",omitempty"`
}

func handleTxStatus(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		h, err := odconsensus.ParseBatchHash(mux.Vars(req)["hash"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		status, height, err := cfg.TxStatusIndex.TxStatus(req.Context(), h)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to load status: %v", err), http.StatusInternalServerError)
			return
		}

		writeJSON(log, w, TxStatusSummary{Hash: h, Status: status.String(), Height: height})
	}
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to encode debug response", "err", err)
	}
}
