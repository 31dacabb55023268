package extract

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pagedex/pagedex/pkg/logger"
)

// pageSeparator joins consecutive pages in the flattened text. Page intervals
// skip over it, matching the offsets the attributor searches against.
const pageSeparator = "\n\n"

// Result is the output of a document extraction.
type Result struct {
	Text    string
	PageMap PageMap
	Pages   int
}

// Extract reads a PDF and returns its flattened text together with the page
// map. Individual page failures yield empty (zero-length) page intervals; only
// a document that cannot be opened at all produces an ExtractionError.
func Extract(ctx context.Context, ra io.ReaderAt, size int64) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ExtractionError{Msg: fmt.Sprintf("parser panic: %v", r)}
		}
	}()
	reader, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, &ExtractionError{Msg: "unreadable document", Err: err}
	}
	pages := reader.NumPage()
	if pages <= 0 {
		return nil, &ExtractionError{Msg: "document has no pages"}
	}
	return assemble(ctx, reader, pages, plainPageText), nil
}

// ExtractLayout behaves like Extract but runs a structure-aware pass that
// marks heading-sized lines with markdown markers so the layout chunking
// strategy can split on them. Any per-page failure falls back to the plain
// extraction for that page; the caller never observes a layout error.
func ExtractLayout(ctx context.Context, ra io.ReaderAt, size int64) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ExtractionError{Msg: fmt.Sprintf("parser panic: %v", r)}
		}
	}()
	reader, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, &ExtractionError{Msg: "unreadable document", Err: err}
	}
	pages := reader.NumPage()
	if pages <= 0 {
		return nil, &ExtractionError{Msg: "document has no pages"}
	}
	return assemble(ctx, reader, pages, layoutPageText), nil
}

func assemble(ctx context.Context, reader *pdf.Reader, pages int, pageText func(pdf.Page) (string, error)) *Result {
	log := logger.FromContext(ctx)
	builder := strings.Builder{}
	pageMap := make(PageMap, 0, pages)
	offset := 0
	for num := 1; num <= pages; num++ {
		text := safePageText(reader.Page(num), pageText)
		if text == "" {
			log.Debug("page yielded no text", "page", num)
		}
		pageMap = append(pageMap, PageRange{Page: num, Start: offset, End: offset + len(text)})
		builder.WriteString(text)
		builder.WriteString(pageSeparator)
		offset += len(text) + len(pageSeparator)
	}
	return &Result{Text: builder.String(), PageMap: pageMap, Pages: pages}
}

// safePageText shields the caller from per-page parser errors and panics; a
// failed page is preserved as an empty one.
func safePageText(page pdf.Page, pageText func(pdf.Page) (string, error)) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()
	if page.V.IsNull() {
		return ""
	}
	text, err := pageText(page)
	if err != nil {
		return ""
	}
	return text
}

func plainPageText(page pdf.Page) (string, error) {
	return page.GetPlainText(nil)
}

// layoutPageText reconstructs positioned rows and prefixes heading-sized rows
// with a markdown marker. It falls back to the plain text when the positioned
// content is unusable.
func layoutPageText(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return plainPageText(page)
	}
	rows := groupRows(content.Text)
	if len(rows) == 0 {
		return plainPageText(page)
	}
	body := bodyFontSize(rows)
	builder := strings.Builder{}
	for i, row := range rows {
		if i > 0 {
			builder.WriteString("\n")
		}
		line := strings.TrimSpace(row.text())
		if line == "" {
			continue
		}
		if body > 0 && row.fontSize >= body*headingScale && len(line) < headingMaxLen {
			builder.WriteString("## ")
		}
		builder.WriteString(line)
	}
	return builder.String(), nil
}

const (
	headingScale  = 1.15
	headingMaxLen = 120
)

type textRow struct {
	y        float64
	fontSize float64
	runs     []pdf.Text
}

func (r *textRow) text() string {
	builder := strings.Builder{}
	for i := range r.runs {
		builder.WriteString(r.runs[i].S)
	}
	return builder.String()
}

// groupRows buckets text runs by their vertical position, top of page first.
func groupRows(texts []pdf.Text) []*textRow {
	const yTolerance = 2.0
	var rows []*textRow
	for i := range texts {
		run := texts[i]
		var row *textRow
		for _, candidate := range rows {
			if run.Y >= candidate.y-yTolerance && run.Y <= candidate.y+yTolerance {
				row = candidate
				break
			}
		}
		if row == nil {
			row = &textRow{y: run.Y, fontSize: run.FontSize}
			rows = append(rows, row)
		}
		if run.FontSize > row.fontSize {
			row.fontSize = run.FontSize
		}
		row.runs = append(row.runs, run)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })
	for _, row := range rows {
		sort.SliceStable(row.runs, func(i, j int) bool { return row.runs[i].X < row.runs[j].X })
	}
	return rows
}

// bodyFontSize picks the dominant font size across rows as the body baseline.
func bodyFontSize(rows []*textRow) float64 {
	counts := make(map[float64]int)
	for _, row := range rows {
		counts[row.fontSize]++
	}
	best, bestCount := 0.0, 0
	for size, count := range counts {
		if count > bestCount || (count == bestCount && size < best) {
			best, bestCount = size, count
		}
	}
	return best
}
