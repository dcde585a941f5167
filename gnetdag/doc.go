// Package gnetdag (Gordian NETwork Directed Acyclic Graph)
// contains types for determining directional flow of network traffic.
//
// Types in this package work on int indices,
// so that they stay decoupled from peer identifiers and transports.
// Callers index into their own ordered slice of peers.
//
// The [FanoutTree] type arranges indices as a complete k-ary tree,
// and is used to relay pushed batches so that the originator
// only contacts a fixed number of peers directly.
package gnetdag
