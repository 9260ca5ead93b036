// Package kv is the persistence substrate of voicegate: a small key-value
// interface over hierarchical keys with an in-memory and a BadgerDB
// implementation.
//
// Keys are string paths such as Key{"voicegate", "profile", "alice"} and are
// stored as "voicegate:profile:alice". A single Set replaces a value
// atomically in every implementation; higher layers rely on that to publish
// whole records.
package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("kv: not found")

	// ErrInvalidKey is returned for empty keys or segments containing the
	// separator.
	ErrInvalidKey = errors.New("kv: invalid key")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("kv: closed")
)

// Separator joins key segments in storage.
const Separator byte = ':'

// Key is a hierarchical path.
type Key []string

func (k Key) String() string { return strings.Join(k, string(Separator)) }

// Append returns a new key with segs added.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	return append(append(out, k...), segs...)
}

// Validate reports whether k can be stored.
func (k Key) Validate() error {
	if len(k) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, seg := range k {
		if seg == "" || strings.IndexByte(seg, Separator) >= 0 {
			return fmt.Errorf("%w: segment %q in %s", ErrInvalidKey, seg, k)
		}
	}
	return nil
}

func (k Key) encode() []byte { return []byte(k.String()) }

// prefix is the encoded form used for List; an empty key matches all.
func (k Key) prefix() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.encode(), Separator)
}

func decode(b []byte) Key { return Key(strings.Split(string(b), string(Separator))) }

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store over hierarchical keys. Implementations are
// safe for concurrent use.
type Store interface {
	// Get returns a copy of the value, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set replaces the value atomically.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List yields entries strictly under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	Close() error
}
