package odlibp2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/gordian-engine/godos/od/odcodec"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odp2p"
)

// DefaultBatchTopic is the pubsub topic batches are gossiped on
// when no topic is configured.
const DefaultBatchTopic = "godos/batches/1"

// BatchGossip publishes and receives batches over a pubsub topic.
type BatchGossip struct {
	log   *slog.Logger
	codec odcodec.MarshalCodec
	self  peer.ID

	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

// NewBatchGossip joins topicName on ps and subscribes to it.
// Call [*BatchGossip.Run] to deliver received batches.
func NewBatchGossip(
	log *slog.Logger, ps *pubsub.PubSub, self peer.ID, codec odcodec.MarshalCodec, topicName string,
) (*BatchGossip, error) {
	if topicName == "" {
		topicName = DefaultBatchTopic
	}

	topic, err := ps.Join(topicName)
	if err != nil {
		return nil, fmt.Errorf("failed to join topic %q: %w", topicName, err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %q: %w", topicName, err)
	}

	return &BatchGossip{
		log:   log,
		codec: codec,
		self:  self,

		topic: topic,
		sub:   sub,
	}, nil
}

// Publish gossips batches to the topic.
func (g *BatchGossip) Publish(ctx context.Context, batches []odconsensus.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	b, err := g.codec.MarshalBatches(batches)
	if err != nil {
		return fmt.Errorf("failed to encode batches: %w", err)
	}
	if err := g.topic.Publish(ctx, b); err != nil {
		return fmt.Errorf("failed to publish batches: %w", err)
	}
	return nil
}

// Run passes batches received from other peers to h
// until ctx is done or the subscription is cancelled.
func (g *BatchGossip) Run(ctx context.Context, h odp2p.BatchHandler) {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, pubsub.ErrSubscriptionCancelled) {
				g.log.Info("Batch subscription stopped", "err", err)
			}
			return
		}

		if msg.ReceivedFrom == g.self {
			continue
		}

		batches, err := g.codec.UnmarshalBatches(msg.Data)
		if err != nil {
			g.log.Debug(
				"Dropping malformed gossiped batches",
				"from", PeerID(msg.ReceivedFrom), "err", err,
			)
			continue
		}

		h.HandleBatches(ctx, batches)
	}
}

// Close cancels the subscription and leaves the topic.
func (g *BatchGossip) Close() error {
	g.sub.Cancel()
	return g.topic.Close()
}
