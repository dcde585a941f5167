package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gordian-engine/godos/od/odcodec/odjson"
	"github.com/gordian-engine/godos/od/odcommit"
	"github.com/gordian-engine/godos/od/oddebug"
	"github.com/gordian-engine/godos/od/odforward"
	"github.com/gordian-engine/godos/od/odmetrics"
	"github.com/gordian-engine/godos/od/odp2p"
	"github.com/gordian-engine/godos/od/odp2p/odlibp2p"
	"github.com/gordian-engine/godos/od/odservice"
	"github.com/gordian-engine/godos/od/odstore/odmemstore"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an ordering node until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			log, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}

			return runNode(cmd.Context(), log.With("node", cfg.Node.Name), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	return cmd
}

func newLogger(w io.Writer, cfg LogConfig) (*slog.Logger, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func runNode(ctx context.Context, log *slog.Logger, cfg *Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.Node.ListenAddrs...))
	if err != nil {
		return fmt.Errorf("failed to start libp2p host: %w", err)
	}
	defer h.Close()

	for _, a := range h.Addrs() {
		log.Info("Listening", "addr", fmt.Sprintf("%s/p2p/%s", a, h.ID()))
	}

	reg := prometheus.NewRegistry()
	m, err := odmetrics.New(reg, "godos")
	if err != nil {
		return err
	}

	codec := odjson.MarshalCodec{}
	tr := odlibp2p.NewTransport(log.With("sys", "transport"), h, odlibp2p.TransportConfig{Codec: codec})

	peers, err := connectPeers(ctx, log, h, cfg.Node.Peers)
	if err != nil {
		return err
	}
	fetcher := odp2p.NewPeerFetcher(log.With("sys", "fetcher"), tr, odp2p.PeerFetcherConfig{
		Peers:       peers,
		Parallelism: cfg.Ordering.FetchParallelism,
	})

	svc, err := odservice.New(
		log.With("sys", "ordering"),
		odservice.WithWindowSize(cfg.Ordering.WindowSize),
		odservice.WithProposalLimits(cfg.Ordering.Limits()),
		odservice.WithExclusionMemory(cfg.Ordering.ExclusionMemory),
		odservice.WithFetcher(fetcher),
		odservice.WithFetchTimeout(cfg.Ordering.FetchTimeout),
		odservice.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	tr.Serve(svc)
	defer tr.Stop()

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return fmt.Errorf("failed to start gossipsub: %w", err)
	}
	gossip, err := odlibp2p.NewBatchGossip(log.With("sys", "gossip"), ps, h.ID(), codec, cfg.Node.GossipTopic)
	if err != nil {
		return err
	}
	defer gossip.Close()

	blocks := odmemstore.NewBlockStore()
	index := odmemstore.NewTxStatusIndex()
	committer, err := odcommit.NewCommitter(log.With("sys", "committer"), odcommit.CommitterConfig{
		BlockStore:    blocks,
		TxStatusIndex: index,
		Service:       svc,
	})
	if err != nil {
		return err
	}
	if err := committer.Replay(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		gossip.Run(ctx, svc)
	}()

	debugCfg := oddebug.HTTPServerConfig{
		Service:       svc,
		TxStatusIndex: index,
		Gatherer:      reg,
	}
	if err := startDebugServers(ctx, log.With("sys", "debug"), cfg.Debug, debugCfg, &wg); err != nil {
		return err
	}

	fwd, err := odforward.New(log.With("sys", "forwarder"), tr, odforward.DefaultConfig())
	if err != nil {
		return err
	}

	if cfg.Demo.Enabled {
		d := &demoDriver{
			log:       log.With("sys", "demo"),
			cfg:       cfg.Demo,
			name:      cfg.Node.Name,
			svc:       svc,
			gossip:    gossip,
			committer: committer,

			forwarder:     fwd,
			peers:         peers,
			forwardRounds: cfg.Ordering.ForwardRounds,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Run(ctx)
		}()
	}

	log.Info("Node started", "peer_id", h.ID(), "peers", len(peers))
	<-ctx.Done()
	log.Info("Node shutting down", "cause", context.Cause(ctx))
	return nil
}

// connectPeers dials every configured peer,
// returning the IDs of the peers that were parsed successfully.
// A dial failure is logged but not fatal; libp2p redials on demand.
func connectPeers(ctx context.Context, log *slog.Logger, h host.Host, addrs []string) ([]odp2p.PeerID, error) {
	out := make([]odp2p.PeerID, 0, len(addrs))
	for _, a := range addrs {
		info, err := peer.AddrInfoFromString(a)
		if err != nil {
			return nil, fmt.Errorf("invalid peer address %q: %w", a, err)
		}

		if err := h.Connect(ctx, *info); err != nil {
			log.Warn("Failed to connect to peer", "addr", a, "err", err)
		}
		out = append(out, odlibp2p.PeerID(info.ID))
	}
	return out, nil
}

func startDebugServers(
	ctx context.Context, log *slog.Logger, cfg DebugConfig, srvCfg oddebug.HTTPServerConfig, wg *sync.WaitGroup,
) error {
	if cfg.Socket != "" {
		// A stale socket from an earlier run would make Listen fail.
		if err := os.Remove(cfg.Socket); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale debug socket: %w", err)
		}
		ln, err := net.Listen("unix", cfg.Socket)
		if err != nil {
			return fmt.Errorf("failed to listen on debug socket: %w", err)
		}
		startDebugServer(ctx, log.With("listener", "unix"), ln, srvCfg, wg)
	}

	if cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on debug HTTP address: %w", err)
		}
		log.Info("Serving debug HTTP", "addr", ln.Addr())
		startDebugServer(ctx, log.With("listener", "tcp"), ln, srvCfg, wg)
	}
	return nil
}

func startDebugServer(
	ctx context.Context, log *slog.Logger, ln net.Listener, srvCfg oddebug.HTTPServerConfig, wg *sync.WaitGroup,
) {
	srvCfg.Listener = ln
	s := oddebug.NewHTTPServer(ctx, log, srvCfg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Wait()
	}()
}
