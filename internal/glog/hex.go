// Package glog contains helpers for structured log values.
package glog

import (
	"encoding/hex"
	"log/slog"
)

// Hex is a byte slice that is rendered as lowercase hex when logged.
type Hex []byte

// LogValue implements [slog.LogValuer].
func (h Hex) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(h))
}

// ShortHex renders only the first 4 bytes of the value,
// which is usually enough to correlate hashes across log lines.
type ShortHex []byte

// LogValue implements [slog.LogValuer].
func (h ShortHex) LogValue() slog.Value {
	if len(h) > 4 {
		return slog.StringValue(hex.EncodeToString(h[:4]))
	}
	return slog.StringValue(hex.EncodeToString(h))
}
