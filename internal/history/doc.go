// Package history keeps diagnostics for resolved transactions and the raw
// wire. Nothing here feeds back into protocol decisions.
package history
