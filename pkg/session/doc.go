// Package session tracks per-open device state.
//
// A Session is created when a device node is opened and destroyed when
// the matching close arrives. Sessions live in a Store, an arena indexed
// by opaque handles issued at open time; ownership of a session belongs
// exclusively to the opener for the duration of that open instance.
//
// The Store keeps creation and release counters so tests can assert the
// open/close pairing invariant: every session originates from an open,
// is released exactly once, and never leaks.
package session
