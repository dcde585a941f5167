// Package odjson contains a [odcodec.MarshalCodec] that serializes to and deserializes from JSON.
//
// JSON is simple to work with and easy to read.
// Other serialization methods would certainly perform better.
package odjson
