// Package odstore declares the persistence boundary next to the ordering service.
//
// The ordering service itself never reads or writes these stores.
// [github.com/gordian-engine/godos/od/odcommit] persists committed blocks
// and then derives the commit and duplicate notifications the service consumes.
package odstore
