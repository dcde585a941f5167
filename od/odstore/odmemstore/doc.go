// Package odmemstore contains in-memory implementations of the [odstore] interfaces.
package odmemstore
