// Package queue is flushq's in-memory flush engine.
//
// Callers Enqueue payloads; the Engine wraps each in an Item, keeps it in a
// pending list, and periodically (or on demand) flushes: the pending list is
// taken as a batch, canceled items are dropped, every remaining item is handed
// to the bound Handler concurrently, successes move to the succeeded list and
// failures go back to pending with one more Attempt recorded.
//
// Nothing here is durable. Items live in memory for the lifetime of the
// Engine; observers that want an audit trail attach a Listener.
package queue
