// Package odlibp2p carries ordering traffic over libp2p.
//
// [Transport] implements [odp2p.Transport] with one short-lived stream per request,
// each carrying newline-delimited messages encoded by an [odcodec.MarshalCodec].
// [BatchGossip] floods batches to every subscriber of a pubsub topic.
package odlibp2p

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/gordian-engine/godos/od/odcodec"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odp2p"
)

const (
	ProposalProtocolID protocol.ID = "/godos/proposal/1.0.0"
	BatchesProtocolID  protocol.ID = "/godos/batches/1.0.0"
)

// MaxMessageSize bounds a single encoded message read from a stream.
const MaxMessageSize = 4 << 20

// DefaultHandlerTimeout bounds how long an inbound stream may take
// to be read, handled, and answered.
const DefaultHandlerTimeout = 5 * time.Second

// PeerID converts a libp2p peer ID to the form used by [odp2p].
func PeerID(id peer.ID) odp2p.PeerID {
	return odp2p.PeerID(id.String())
}

// Transport is a libp2p [odp2p.Transport].
type Transport struct {
	log   *slog.Logger
	h     host.Host
	codec odcodec.MarshalCodec

	handlerTimeout time.Duration

	serveOnce sync.Once
}

var _ odp2p.Transport = (*Transport)(nil)

// TransportConfig configures a [Transport].
type TransportConfig struct {
	Codec odcodec.MarshalCodec

	// Zero means DefaultHandlerTimeout.
	HandlerTimeout time.Duration
}

// NewTransport returns a transport over h.
// Call [*Transport.Serve] to start answering inbound streams.
func NewTransport(log *slog.Logger, h host.Host, cfg TransportConfig) *Transport {
	timeout := cfg.HandlerTimeout
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	return &Transport{
		log:   log,
		h:     h,
		codec: cfg.Codec,

		handlerTimeout: timeout,
	}
}

// Self returns the local peer ID.
func (t *Transport) Self() odp2p.PeerID {
	return PeerID(t.h.ID())
}

// Serve registers stream handlers dispatching to srv.
// Only the first call has any effect.
func (t *Transport) Serve(srv odp2p.Server) {
	t.serveOnce.Do(func() {
		t.h.SetStreamHandler(ProposalProtocolID, func(s network.Stream) {
			t.handleProposalStream(srv, s)
		})
		t.h.SetStreamHandler(BatchesProtocolID, func(s network.Stream) {
			t.handleBatchesStream(srv, s)
		})
	})
}

// Stop removes the stream handlers registered by Serve.
func (t *Transport) Stop() {
	t.h.RemoveStreamHandler(ProposalProtocolID)
	t.h.RemoveStreamHandler(BatchesProtocolID)
}

// RequestProposal implements [odp2p.Transport].
func (t *Transport) RequestProposal(
	ctx context.Context, p odp2p.PeerID, r odconsensus.Round,
) (*odconsensus.Proposal, error) {
	s, err := t.openStream(ctx, p, ProposalProtocolID)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	id := uuid.NewString()
	if err := t.writeMessage(s, odcodec.Message{
		ProposalRequest: &odcodec.ProposalRequest{ID: id, Round: r},
	}); err != nil {
		return nil, fmt.Errorf("failed to send proposal request: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return nil, fmt.Errorf("failed to close request side of stream: %w", err)
	}

	msg, err := t.readMessage(s)
	if err != nil {
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to read proposal response: %w", err)
	}

	resp := msg.ProposalResponse
	if resp == nil {
		return nil, errors.New("peer answered proposal request with wrong message type")
	}
	if resp.ID != id {
		return nil, fmt.Errorf("response id mismatch: sent %s, got %s", id, resp.ID)
	}
	if resp.Proposal == nil {
		return nil, odp2p.ErrNoProposal
	}
	return resp.Proposal, nil
}

// PushBatches implements [odp2p.Transport].
func (t *Transport) PushBatches(ctx context.Context, p odp2p.PeerID, batches []odconsensus.Batch) error {
	s, err := t.openStream(ctx, p, BatchesProtocolID)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := t.writeMessage(s, odcodec.Message{
		BatchPush: &odcodec.BatchPush{Batches: batches},
	}); err != nil {
		return fmt.Errorf("failed to push batches: %w", err)
	}
	return nil
}

// openStream opens a stream to p that is reset if ctx finishes first.
func (t *Transport) openStream(ctx context.Context, p odp2p.PeerID, pid protocol.ID) (network.Stream, error) {
	id, err := peer.Decode(string(p))
	if err != nil {
		return nil, fmt.Errorf("invalid peer id %q: %w", p, err)
	}

	s, err := t.h.NewStream(ctx, id, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream to %s: %w", pid, p, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Reset() })

	return &ctxStream{Stream: s, stop: stop}, nil
}

func (t *Transport) handleProposalStream(srv odp2p.ProposalProvider, s network.Stream) {
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), t.handlerTimeout)
	defer cancel()
	_ = s.SetDeadline(time.Now().Add(t.handlerTimeout))

	remote := PeerID(s.Conn().RemotePeer())

	msg, err := t.readMessage(s)
	if err != nil {
		t.log.Debug("Failed to read proposal request", "peer", remote, "err", err)
		_ = s.Reset()
		return
	}
	req := msg.ProposalRequest
	if req == nil {
		t.log.Debug("Unexpected message on proposal stream", "peer", remote)
		_ = s.Reset()
		return
	}

	resp := &odcodec.ProposalResponse{ID: req.ID}
	if p, ok := srv.ProvideProposal(ctx, req.Round); ok {
		resp.Proposal = p
	}

	if err := t.writeMessage(s, odcodec.Message{ProposalResponse: resp}); err != nil {
		t.log.Debug(
			"Failed to write proposal response",
			"peer", remote, "round", req.Round, "err", err,
		)
		_ = s.Reset()
	}
}

func (t *Transport) handleBatchesStream(srv odp2p.BatchHandler, s network.Stream) {
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), t.handlerTimeout)
	defer cancel()
	_ = s.SetDeadline(time.Now().Add(t.handlerTimeout))

	remote := PeerID(s.Conn().RemotePeer())

	msg, err := t.readMessage(s)
	if err != nil {
		t.log.Debug("Failed to read pushed batches", "peer", remote, "err", err)
		_ = s.Reset()
		return
	}
	if msg.BatchPush == nil {
		t.log.Debug("Unexpected message on batches stream", "peer", remote)
		_ = s.Reset()
		return
	}

	srv.HandleBatches(ctx, msg.BatchPush.Batches)
}

func (t *Transport) writeMessage(w io.Writer, m odcodec.Message) error {
	b, err := t.codec.MarshalMessage(m)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if bytes.IndexByte(b, '\n') >= 0 {
		return errors.New("BUG: encoded message contains newline")
	}

	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return err
	}
	return nil
}

func (t *Transport) readMessage(r io.Reader) (odcodec.Message, error) {
	br := bufio.NewReader(io.LimitReader(r, MaxMessageSize+1))
	line, err := br.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > MaxMessageSize {
			return odcodec.Message{}, fmt.Errorf("message exceeds %d bytes", MaxMessageSize)
		}
		return odcodec.Message{}, err
	}

	var m odcodec.Message
	if err := t.codec.UnmarshalMessage(line[:len(line)-1], &m); err != nil {
		return odcodec.Message{}, err
	}
	return m, nil
}

// ctxStream releases the context watcher when the stream is closed.
type ctxStream struct {
	network.Stream
	stop func() bool
}

func (s *ctxStream) Close() error {
	s.stop()
	return s.Stream.Close()
}
