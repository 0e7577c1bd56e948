// Package memory implements the two-tier memory system: a small in-process
// working tier with importance-based eviction, and a durable tier behind
// the Store interface with SQLite and Redis implementations. The Manager
// routes records between the tiers based on importance thresholds.
package memory
