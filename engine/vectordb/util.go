package vectordb

import "math"

const defaultTopK = 5

// cosineSimilarity returns the cosine of the angle between two equal-length
// vectors, or 0 when either has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// documentInScope reports whether a record's document id is in the search
// scope.
func documentInScope(docID string, scope []string) bool {
	for _, id := range scope {
		if id == docID {
			return true
		}
	}
	return false
}

func clonePages(pages []int) []int {
	if len(pages) == 0 {
		return nil
	}
	return append([]int(nil), pages...)
}
