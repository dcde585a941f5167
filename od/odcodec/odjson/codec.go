package odjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/godos/od/odcodec"
	"github.com/gordian-engine/godos/od/odconsensus"
)

// MarshalCodec is the JSON implementation of [odcodec.MarshalCodec].
// The zero value is ready to use.
type MarshalCodec struct{}

var _ odcodec.MarshalCodec = MarshalCodec{}

type jsonRound struct {
	Height uint64
	Reject uint32
}

type jsonBatch struct {
	Hash         odconsensus.BatchHash
	Transactions [][]byte
	CreatedAt    time.Time
}

type jsonProposal struct {
	Round     jsonRound
	Batches   []jsonBatch
	CreatedAt time.Time
}

type jsonBlock struct {
	Height   uint64
	Round    jsonRound
	Batches  []jsonBatch
	Rejected []odconsensus.BatchHash `json:",omitempty"`
}

type jsonMessage struct {
	Type string

	ID string `json:",omitempty"`

	Round    *jsonRound    `json:",omitempty"`
	Proposal *jsonProposal `json:",omitempty"`
	Batches  []jsonBatch   `json:",omitempty"`
}

const (
	msgProposalRequest  = "proposal_request"
	msgProposalResponse = "proposal_response"
	msgBatchPush        = "batch_push"
)

func (MarshalCodec) MarshalProposal(p *odconsensus.Proposal) ([]byte, error) {
	return json.Marshal(toJSONProposal(p))
}

func (MarshalCodec) UnmarshalProposal(b []byte, p *odconsensus.Proposal) error {
	var jp jsonProposal
	if err := json.Unmarshal(b, &jp); err != nil {
		return fmt.Errorf("failed to unmarshal proposal: %w", err)
	}
	*p = jp.toProposal()
	return nil
}

func (MarshalCodec) MarshalBatches(bs []odconsensus.Batch) ([]byte, error) {
	return json.Marshal(toJSONBatches(bs))
}

func (MarshalCodec) UnmarshalBatches(b []byte) ([]odconsensus.Batch, error) {
	var jbs []jsonBatch
	if err := json.Unmarshal(b, &jbs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batches: %w", err)
	}
	return fromJSONBatches(jbs), nil
}

func (MarshalCodec) MarshalBlock(cb odconsensus.CommittedBlock) ([]byte, error) {
	return json.Marshal(jsonBlock{
		Height:   cb.Height,
		Round:    jsonRound(cb.Round),
		Batches:  toJSONBatches(cb.Batches),
		Rejected: cb.Rejected,
	})
}

func (MarshalCodec) UnmarshalBlock(b []byte, cb *odconsensus.CommittedBlock) error {
	var jb jsonBlock
	if err := json.Unmarshal(b, &jb); err != nil {
		return fmt.Errorf("failed to unmarshal block: %w", err)
	}
	*cb = odconsensus.CommittedBlock{
		Height:   jb.Height,
		Round:    odconsensus.Round(jb.Round),
		Batches:  fromJSONBatches(jb.Batches),
		Rejected: jb.Rejected,
	}
	return nil
}

func (MarshalCodec) MarshalMessage(m odcodec.Message) ([]byte, error) {
	var jm jsonMessage
	switch {
	case m.ProposalRequest != nil:
		r := jsonRound(m.ProposalRequest.Round)
		jm = jsonMessage{
			Type:  msgProposalRequest,
			ID:    m.ProposalRequest.ID,
			Round: &r,
		}
	case m.ProposalResponse != nil:
		jm = jsonMessage{
			Type: msgProposalResponse,
			ID:   m.ProposalResponse.ID,
		}
		if p := m.ProposalResponse.Proposal; p != nil {
			jp := toJSONProposal(p)
			jm.Proposal = &jp
		}
	case m.BatchPush != nil:
		jm = jsonMessage{
			Type:    msgBatchPush,
			Batches: toJSONBatches(m.BatchPush.Batches),
		}
	default:
		return nil, errors.New("BUG: message has no content")
	}
	return json.Marshal(jm)
}

func (MarshalCodec) UnmarshalMessage(b []byte, m *odcodec.Message) error {
	var jm jsonMessage
	if err := json.Unmarshal(b, &jm); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	switch jm.Type {
	case msgProposalRequest:
		if jm.Round == nil {
			return errors.New("proposal request missing round")
		}
		*m = odcodec.Message{ProposalRequest: &odcodec.ProposalRequest{
			ID:    jm.ID,
			Round: odconsensus.Round(*jm.Round),
		}}
	case msgProposalResponse:
		resp := &odcodec.ProposalResponse{ID: jm.ID}
		if jm.Proposal != nil {
			p := jm.Proposal.toProposal()
			resp.Proposal = &p
		}
		*m = odcodec.Message{ProposalResponse: resp}
	case msgBatchPush:
		*m = odcodec.Message{BatchPush: &odcodec.BatchPush{
			Batches: fromJSONBatches(jm.Batches),
		}}
	default:
		return fmt.Errorf("unknown message type %q", jm.Type)
	}
	return nil
}

func toJSONProposal(p *odconsensus.Proposal) jsonProposal {
	return jsonProposal{
		Round:     jsonRound(p.Round),
		Batches:   toJSONBatches(p.Batches),
		CreatedAt: p.CreatedAt,
	}
}

func (jp jsonProposal) toProposal() odconsensus.Proposal {
	return odconsensus.Proposal{
		Round:     odconsensus.Round(jp.Round),
		Batches:   fromJSONBatches(jp.Batches),
		CreatedAt: jp.CreatedAt,
	}
}

func toJSONBatches(bs []odconsensus.Batch) []jsonBatch {
	if bs == nil {
		return nil
	}
	out := make([]jsonBatch, len(bs))
	for i, b := range bs {
		out[i] = jsonBatch(b)
	}
	return out
}

func fromJSONBatches(jbs []jsonBatch) []odconsensus.Batch {
	if jbs == nil {
		return nil
	}
	out := make([]odconsensus.Batch, len(jbs))
	for i, jb := range jbs {
		out[i] = odconsensus.Batch(jb)
	}
	return out
}
