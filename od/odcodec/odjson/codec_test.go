package odjson_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gordian-engine/godos/od/odcodec"
	"github.com/gordian-engine/godos/od/odcodec/odcodectest"
	"github.com/gordian-engine/godos/od/odcodec/odjson"
	"github.com/gordian-engine/godos/od/odconsensus"
	"github.com/gordian-engine/godos/od/odconsensus/odconsensustest"
)

func TestMarshalCodec_Compliance(t *testing.T) {
	odcodectest.TestMarshalCodecCompliance(t, odjson.MarshalCodec{})
}

func TestMarshalCodec_unknownMessageType(t *testing.T) {
	t.Parallel()

	var c odjson.MarshalCodec
	var m odcodec.Message
	require.ErrorContains(t, c.UnmarshalMessage([]byte(`{"Type":"gossip"}`), &m), `unknown message type "gossip"`)
	require.ErrorContains(t, c.UnmarshalMessage([]byte(`{"Type":"proposal_request"}`), &m), "missing round")
}

func TestMarshalCodec_hashIsHex(t *testing.T) {
	t.Parallel()

	b := odconsensustest.NewBatchFixture().NextBatch(1)
	out, err := odjson.MarshalCodec{}.MarshalBatches([]odconsensus.Batch{b})
	require.NoError(t, err)
	require.Contains(t, string(out), `"Hash":"`+b.Hash.String()+`"`)
}
