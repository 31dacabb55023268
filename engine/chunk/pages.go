package chunk

import (
	"context"
	"strings"

	"github.com/pagedex/pagedex/engine/extract"
	"github.com/pagedex/pagedex/pkg/logger"
)

// AttributePages resolves the page numbers each chunk overlaps by locating
// the chunk text inside the flattened document text. A chunk whose text
// appears more than once is attributed to its first occurrence. Chunks that
// cannot be located keep a nil page list.
func AttributePages(ctx context.Context, chunks []Chunk, text string, pageMap extract.PageMap) {
	log := logger.FromContext(ctx)
	for i := range chunks {
		start := strings.Index(text, chunks[i].Text)
		if start < 0 {
			log.Warn("chunk text not found in source, skipping page attribution",
				"document_id", chunks[i].DocumentID, "chunk_index", chunks[i].Index)
			continue
		}
		chunks[i].Pages = pageMap.PagesOverlapping(start, start+len(chunks[i].Text))
	}
}
