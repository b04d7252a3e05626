/*
Package types defines the core data structures shared across hps-cli's
packages: the local identity, content-addressed blob records, DNS records,
known-server bookkeeping, and session statistics counters.

These types mirror the rows of the local SQLite database (pkg/storage) and
the JSON payloads exchanged over the transport (pkg/transport). They carry
no methods and no I/O of their own.

# Core Types

Identity and content:
  - ContentRecord: a cached content-addressed blob and its metadata
  - DNSRecord: a registered name to content-hash mapping
  - KnownServer: a server address this client has talked to

Session and reputation:
  - NetworkNode: a peer observed in network_state replies
  - Report: an abuse report filed against a content hash
  - HistoryEntry: one row of the command history log
  - SessionStats: the in-memory counters stored in cli_session

# Thread Safety

Types in this package carry no synchronization of their own; pkg/client
guards the shared SessionStats instance with its own mutex.
*/
package types
