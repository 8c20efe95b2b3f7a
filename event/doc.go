// Package event defines the records this module resolves: NIP-01 events keyed
// by their 32-byte content address.
//
// An event's ID is the sha2-256 digest of its canonical serialization. Because
// the ID is derived from the bytes, two events with the same ID are the same
// event; callers rely on that to treat every copy as interchangeable.
package event
