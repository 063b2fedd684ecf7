//go:build linux || darwin

package handle

import (
	"slices"
)

// AuxStore holds named values attached to a handle by upper layers, each
// with an optional destructor. It isn't safe for concurrent use.
type AuxStore struct {
	entries map[string]auxEntry
	keys    []string
}

type auxEntry struct {
	value   any
	destroy func(any)
}

// Get returns the value stored under key.
func (s *AuxStore) Get(key string) (any, bool) {
	e, ok := s.entries[key]
	return e.value, ok
}

// Set stores value under key, replacing and destroying any previous value.
// A nil value deletes the key.
func (s *AuxStore) Set(key string, value any, destroy func(any)) {
	prev, ok := s.entries[key]
	if value == nil {
		if ok {
			delete(s.entries, key)
			s.keys = slices.DeleteFunc(s.keys, func(k string) bool { return k == key })
		}
	} else {
		if s.entries == nil {
			s.entries = make(map[string]auxEntry)
		}
		if !ok {
			s.keys = append(s.keys, key)
		}
		s.entries[key] = auxEntry{value: value, destroy: destroy}
	}
	if ok && prev.destroy != nil {
		prev.destroy(prev.value)
	}
}

// Delete removes key, running its destructor.
func (s *AuxStore) Delete(key string) { s.Set(key, nil, nil) }

func (s *AuxStore) Len() int { return len(s.entries) }

// Clear destroys every value, in insertion order.
func (s *AuxStore) Clear() {
	entries, keys := s.entries, s.keys
	s.entries, s.keys = nil, nil
	for _, key := range keys {
		if e := entries[key]; e.destroy != nil {
			e.destroy(e.value)
		}
	}
}

// AuxKey is a typed key for an [AuxStore] slot.
type AuxKey[T any] struct {
	name string
}

func NewAuxKey[T any](name string) AuxKey[T] { return AuxKey[T]{name: name} }

func (k AuxKey[T]) Name() string { return k.name }

// Get returns the value stored under k, if it has type T.
func (k AuxKey[T]) Get(s *AuxStore) (v T, ok bool) {
	raw, ok := s.Get(k.name)
	if !ok {
		return v, false
	}
	v, ok = raw.(T)
	return v, ok
}

// Set stores v under k. The destructor, if any, runs when the value is
// replaced, deleted, or the store is cleared.
func (k AuxKey[T]) Set(s *AuxStore, v T, destroy func(T)) {
	var fn func(any)
	if destroy != nil {
		fn = func(raw any) { destroy(raw.(T)) }
	}
	s.Set(k.name, v, fn)
}
