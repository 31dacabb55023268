package chunk

import (
	"fmt"
	"strings"
)

// Method selects the splitting strategy applied to extracted text.
type Method string

const (
	// MethodStandard splits on the recursive character boundaries.
	MethodStandard Method = "standard"
	// MethodSemantic prefers sentence boundaries before falling back to
	// character boundaries.
	MethodSemantic Method = "semantic"
	// MethodLayout splits on heading markers first, then recursively within
	// each section.
	MethodLayout Method = "layout"
)

// ParseMethod normalizes a configured method name. An empty value selects the
// standard method.
func ParseMethod(raw string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MethodStandard:
		return MethodStandard, nil
	case MethodSemantic:
		return MethodSemantic, nil
	case MethodLayout:
		return MethodLayout, nil
	default:
		return "", fmt.Errorf("chunk: unknown method %q", raw)
	}
}

// Settings configures the processor.
type Settings struct {
	Method  Method
	Size    int
	Overlap int
}

// Chunk is a slice of a document ready for embedding. Pages lists the
// one-based page numbers the chunk text overlaps; it stays nil until the
// attributor resolves it.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Hash       string
	Pages      []int
}
