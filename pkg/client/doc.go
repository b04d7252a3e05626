/*
Package client wires together the identity, storage, content, transport,
session, and reactor packages into the single object the CLI's command
dispatcher and controller bridge both drive: Client.

Client owns the process's RSA-4096 identity, its local SQLite-backed
state, its one connection to a server, and the in-memory session
statistics stored in cli_session. It registers the transport event
handlers that route inbound events to the session handshake, the
reactor's gated flows, and the plain request/reply waiters used by the
ungated verbs (search, network, dns-res).
*/
package client
