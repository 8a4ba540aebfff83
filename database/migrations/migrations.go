// Package migrations registers the ventas schema. Import it for its side
// effects wherever migrations run.
package migrations
