package extract

import (
	"errors"
	"fmt"
)

// PageRange maps one page onto a half-open [Start, End) byte interval of the
// flattened document text. Zero-length ranges are valid: a page with no
// extractable text still occupies its slot so page numbers stay dense 1..N.
type PageRange struct {
	Page  int `json:"page"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// PageMap is the ordered page-to-interval table built during extraction.
type PageMap []PageRange

// Validate checks that pages are dense 1..N with ordered, non-overlapping
// intervals.
func (m PageMap) Validate() error {
	prevEnd := 0
	for i := range m {
		r := m[i]
		if r.Page != i+1 {
			return fmt.Errorf("extract: page map not dense at index %d (got page %d)", i, r.Page)
		}
		if r.End < r.Start {
			return fmt.Errorf("extract: page %d has inverted interval [%d, %d)", r.Page, r.Start, r.End)
		}
		if r.Start < prevEnd {
			return fmt.Errorf("extract: page %d interval overlaps its predecessor", r.Page)
		}
		prevEnd = r.End
	}
	return nil
}

// PagesOverlapping returns the pages whose interval is neither entirely before
// start nor entirely after end. Touching a boundary counts as overlap.
func (m PageMap) PagesOverlapping(start, end int) []int {
	if start > end {
		return nil
	}
	var pages []int
	for i := range m {
		r := m[i]
		if r.End < start || r.Start > end {
			continue
		}
		pages = append(pages, r.Page)
	}
	return pages
}

// ExtractionError signals that the uploaded bytes could not be read as a
// document. It is terminal for the document: the caller records the message
// and moves the document to the error status.
type ExtractionError struct {
	Msg string
	Err error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Msg, e.Err)
	}
	return "extract: " + e.Msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsExtractionError reports whether err wraps an ExtractionError.
func IsExtractionError(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}
