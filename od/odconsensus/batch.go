package odconsensus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"
)

// BatchHashSize is the size in bytes of a [BatchHash].
const BatchHashSize = 32

// BatchHash is the digest identifying a [Batch].
//
// The ordering subsystem never computes batch hashes itself;
// the value travels with the batch from the validation layer.
type BatchHash [BatchHashSize]byte

// ParseBatchHash decodes a hex-encoded batch hash.
func ParseBatchHash(s string) (BatchHash, error) {
	var h BatchHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid batch hash %q: %w", s, err)
	}
	if len(b) != BatchHashSize {
		return h, fmt.Errorf("invalid batch hash length: want %d, got %d", BatchHashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Compare orders hashes by their byte values.
func (h BatchHash) Compare(other BatchHash) int {
	return bytes.Compare(h[:], other[:])
}

func (h BatchHash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements [encoding.TextMarshaler].
func (h BatchHash) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(BatchHashSize))
	hex.Encode(out, h[:])
	return out, nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (h *BatchHash) UnmarshalText(text []byte) error {
	parsed, err := ParseBatchHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Batch is an atomic, client-submitted group of transactions.
//
// Once a Batch has been handed to the ordering service,
// neither the service nor callers may modify its fields.
type Batch struct {
	Hash BatchHash

	// Transactions are opaque to the ordering subsystem.
	Transactions [][]byte

	CreatedAt time.Time
}

// TxCount returns the number of transactions in the batch.
func (b Batch) TxCount() int {
	return len(b.Transactions)
}

// BatchHashes returns the hashes of batches, in order.
func BatchHashes(batches []Batch) []BatchHash {
	out := make([]BatchHash, len(batches))
	for i, b := range batches {
		out[i] = b.Hash
	}
	return out
}
