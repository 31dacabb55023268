package core

import "github.com/google/uuid"

// NewID returns an opaque unique token for documents and chunks.
func NewID() string {
	return uuid.NewString()
}

// CloneMap returns a shallow copy of the given map, preserving nil.
func CloneMap[K comparable, V any](src map[K]V) map[K]V {
	if src == nil {
		return nil
	}
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
