// Package pglink is a low-level PostgreSQL connection engine.
//
// pglink multiplexes application requests onto a single TCP (optionally
// TLS-wrapped) session speaking the PostgreSQL frontend/backend protocol
// version 3. It owns the connection handshake, serializes query execution
// so at most one request is on the wire at a time, and fans out
// asynchronous LISTEN/NOTIFY traffic to subscribers.
//
// A Conn is driven by a single supervisor goroutine. Query, Listen,
// Unlisten and Close may be called from any goroutine; each call posts a
// request to the supervisor and blocks until the reply arrives or the
// configured call timeout elapses. A caller that gives up does not
// cancel the request server-side -- the request still occupies its queue
// slot until the server replies.
//
// Wire message encoding and decoding is delegated to
// github.com/jackc/pgproto3/v2. Column value conversion is handled by a
// small built-in codec set and may be replaced through the Encoder,
// Decoder and Formatter callbacks on Config.
package pglink
