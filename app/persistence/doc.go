// Package persistence provides the local key-value stores keeping the tracker state.
// SQLiteStore keeps the values in a single sqlite table with WAL mode enabled,
// MemoryStore keeps them in a map and is used for ephemeral runs and tests.
package persistence
