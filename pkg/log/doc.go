// Package log provides structured event logging for the hub and its
// transports.
//
// Components accept a Logger and emit Event records for messages,
// state changes, and errors. Events use integer-keyed CBOR tags so a
// capture file stays compact; the slog adapter renders them for
// human-readable output. Pass nil or NoopLogger to disable logging.
package log
