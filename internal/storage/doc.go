// Package storage keeps an audit journal of queue items.
//
// Drivers:
//   - file: JSON Lines journal compacted into a snapshot
//   - sqlite: one upserted row per item
//
// The journal is write-mostly and never replayed into an engine.
package storage
