/*
Package storage provides SQLite-backed persistence for the client's local
relational state: the content cache, known-server table, DNS records,
network-node sightings, abuse reports, command history, and session stats.

SQLiteStore opens a single database file (hps_cli.db) under the client's
data directory through modernc.org/sqlite, a pure-Go driver, and applies
WAL journaling, NORMAL synchronous mode, and a configurable busy timeout
on open so a single process can read and write without external locking
coordination.

The Store interface is the seam the rest of the client programs against;
SQLiteStore is its only implementation.
*/
package storage
