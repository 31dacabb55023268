package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/pagedex/pagedex/pkg/logger"
)

var headingPattern = regexp.MustCompile(`(?m)^#{1,6} `)

// semanticSeparators prefer sentence boundaries over raw character splits.
var semanticSeparators = []string{"\n\n", ". ", "? ", "! ", "\n", " ", ""}

// Processor splits extracted text into chunks. Splitting never rewrites the
// text, so every chunk remains an exact substring of its source and can be
// located again for page attribution.
type Processor struct {
	settings Settings
}

// NewProcessor builds a processor with validated settings.
func NewProcessor(settings Settings) (*Processor, error) {
	method, err := ParseMethod(string(settings.Method))
	if err != nil {
		return nil, err
	}
	settings.Method = method
	if settings.Size <= 0 {
		return nil, errors.New("chunk: size must be greater than zero")
	}
	if settings.Overlap < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	if settings.Overlap >= settings.Size {
		return nil, fmt.Errorf("chunk: overlap %d must be smaller than size %d", settings.Overlap, settings.Size)
	}
	return &Processor{settings: settings}, nil
}

// Method returns the configured splitting method.
func (p *Processor) Method() Method {
	return p.settings.Method
}

// Process splits a document's text into deterministic chunks using the
// configured method.
func (p *Processor) Process(ctx context.Context, docID string, text string) ([]Chunk, error) {
	return p.ProcessWith(ctx, docID, text, p.settings.Method)
}

// ProcessWith splits with an explicit method, overriding the configured one.
// A failure of the requested method falls back to the standard method before
// giving up.
func (p *Processor) ProcessWith(ctx context.Context, docID string, text string, method Method) ([]Chunk, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, errors.New("chunk: document id is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	method, err := ParseMethod(string(method))
	if err != nil {
		return nil, err
	}
	segments, err := p.split(method, text)
	if err != nil && method != MethodStandard {
		logger.FromContext(ctx).Warn("chunk method failed, using standard",
			"method", method, "error", err)
		segments, err = p.split(MethodStandard, text)
	}
	if err != nil {
		return nil, fmt.Errorf("chunk: split document %s: %w", docID, err)
	}
	chunks := make([]Chunk, 0, len(segments))
	for _, segment := range segments {
		chunkText := strings.TrimSpace(segment)
		if chunkText == "" {
			continue
		}
		idx := len(chunks)
		hash := hashText(chunkText)
		chunks = append(chunks, Chunk{
			ID:         hashText(docID + "::" + fmt.Sprint(idx) + "::" + hash),
			DocumentID: docID,
			Index:      idx,
			Text:       chunkText,
			Hash:       hash,
		})
	}
	return chunks, nil
}

func (p *Processor) split(method Method, text string) ([]string, error) {
	switch method {
	case MethodSemantic:
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(p.settings.Size),
			textsplitter.WithChunkOverlap(p.settings.Overlap),
			textsplitter.WithSeparators(semanticSeparators),
		)
		return splitter.SplitText(text)
	case MethodLayout:
		return p.splitLayout(text)
	default:
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(p.settings.Size),
			textsplitter.WithChunkOverlap(p.settings.Overlap),
		)
		return splitter.SplitText(text)
	}
}

// splitLayout cuts the text at heading markers and splits each section
// recursively. A document without headings degrades to a single section,
// which is equivalent to the standard method.
func (p *Processor) splitLayout(text string) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.settings.Size),
		textsplitter.WithChunkOverlap(p.settings.Overlap),
	)
	segments := make([]string, 0)
	for _, section := range splitSections(text) {
		parts, err := splitter.SplitText(section)
		if err != nil {
			return nil, err
		}
		segments = append(segments, parts...)
	}
	return segments, nil
}

// splitSections returns the text partitioned at heading markers, each heading
// staying attached to the section it opens.
func splitSections(text string) []string {
	starts := headingPattern.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return []string{text}
	}
	sections := make([]string, 0, len(starts)+1)
	prev := 0
	for _, loc := range starts {
		if loc[0] > prev {
			sections = append(sections, text[prev:loc[0]])
		}
		prev = loc[0]
	}
	sections = append(sections, text[prev:])
	return sections
}

func hashText(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
