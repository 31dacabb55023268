package extract

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Arial", "", 12)
	for _, text := range pages {
		doc.AddPage()
		doc.MultiCell(180, 6, text, "", "L", false)
	}
	buf := bytes.Buffer{}
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	t.Run("Should extract text and a dense page map from a two page document", func(t *testing.T) {
		raw := buildPDF(t, "alpha content on the first page", "omega content on the second page")
		result, err := Extract(context.Background(), bytes.NewReader(raw), int64(len(raw)))
		require.NoError(t, err)
		assert.Equal(t, 2, result.Pages)
		require.NoError(t, result.PageMap.Validate())
		require.Len(t, result.PageMap, 2)
		assert.Contains(t, result.Text, "alpha")
		assert.Contains(t, result.Text, "omega")
	})
	t.Run("Should map offsets so each page interval covers its own words", func(t *testing.T) {
		raw := buildPDF(t, "alpha alpha alpha", "omega omega omega")
		result, err := Extract(context.Background(), bytes.NewReader(raw), int64(len(raw)))
		require.NoError(t, err)
		idx := strings.Index(result.Text, "omega")
		require.GreaterOrEqual(t, idx, 0)
		pages := result.PageMap.PagesOverlapping(idx, idx+len("omega"))
		assert.Equal(t, []int{2}, pages)
	})
	t.Run("Should reject unreadable bytes with an extraction error", func(t *testing.T) {
		raw := []byte("this is not a pdf document at all")
		_, err := Extract(context.Background(), bytes.NewReader(raw), int64(len(raw)))
		require.Error(t, err)
		assert.True(t, IsExtractionError(err))
	})
}

func TestExtractLayout(t *testing.T) {
	t.Run("Should mark heading sized lines and keep a valid page map", func(t *testing.T) {
		doc := gofpdf.New("P", "mm", "A4", "")
		doc.AddPage()
		doc.SetFont("Arial", "B", 20)
		doc.Cell(180, 10, "Introduction")
		doc.Ln(12)
		doc.SetFont("Arial", "", 12)
		doc.MultiCell(180, 6, "body text that follows the heading and fills the section", "", "L", false)
		buf := bytes.Buffer{}
		require.NoError(t, doc.Output(&buf))

		result, err := ExtractLayout(context.Background(), bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoError(t, err)
		require.NoError(t, result.PageMap.Validate())
		assert.Contains(t, result.Text, "## Introduction")
		assert.Contains(t, result.Text, "body text")
	})
	t.Run("Should reject unreadable bytes with an extraction error", func(t *testing.T) {
		raw := []byte("%PDF-truncated")
		_, err := ExtractLayout(context.Background(), bytes.NewReader(raw), int64(len(raw)))
		require.Error(t, err)
		assert.True(t, IsExtractionError(err))
	})
}
