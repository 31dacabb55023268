package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/pagedex/pagedex/engine/retriever"
)

type stubModel struct {
	response string
	err      error
	prompts  []string
}

func (s *stubModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				s.prompts = append(s.prompts, text.Text)
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: s.response}},
	}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testResults() []retriever.Result {
	return []retriever.Result{
		{ChunkID: "c1", DocumentID: "doc1", Text: "The warranty lasts two years.", Pages: []int{3}, Relevance: 1.0},
		{ChunkID: "c2", DocumentID: "doc1", Text: "Claims require the receipt.", Pages: []int{4}, Relevance: 0.9},
		{ChunkID: "c3", DocumentID: "doc2", Text: "Returns close after 30 days.", Pages: []int{1}, Relevance: 0.8},
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}

	t.Run("Should answer from retrieved passages with per document sources", func(t *testing.T) {
		model := &stubModel{response: "The warranty lasts two years (page 3)."}
		svc, err := Wrap(cfg, model)
		require.NoError(t, err)

		got, err := svc.Answer(ctx, "How long is the warranty?", testResults())
		require.NoError(t, err)
		assert.Equal(t, "The warranty lasts two years (page 3).", got.Text)
		require.Len(t, got.Sources, 2)
		assert.Equal(t, "doc1", got.Sources[0].DocumentID)
		assert.Equal(t, []int{3, 4}, got.Sources[0].Pages)
		assert.InDelta(t, 1.0, got.Sources[0].Relevance, 1e-9)
		assert.Equal(t, "doc2", got.Sources[1].DocumentID)
	})

	t.Run("Should include passages and page citations in the prompt", func(t *testing.T) {
		model := &stubModel{response: "ok"}
		svc, err := Wrap(cfg, model)
		require.NoError(t, err)

		_, err = svc.Answer(ctx, "How long is the warranty?", testResults())
		require.NoError(t, err)
		require.NotEmpty(t, model.prompts)
		prompt := model.prompts[0]
		assert.Contains(t, prompt, "The warranty lasts two years.")
		assert.Contains(t, prompt, "page 3")
		assert.Contains(t, prompt, "Question: How long is the warranty?")
	})

	t.Run("Should return the fixed answer when nothing was retrieved", func(t *testing.T) {
		model := &stubModel{response: "should not be called"}
		svc, err := Wrap(cfg, model)
		require.NoError(t, err)

		got, err := svc.Answer(ctx, "Anything?", nil)
		require.NoError(t, err)
		assert.Equal(t, NoInformationAnswer, got.Text)
		assert.Empty(t, got.Sources)
		assert.Empty(t, model.prompts)
	})

	t.Run("Should degrade with sources when generation fails", func(t *testing.T) {
		model := &stubModel{err: errors.New("model unavailable")}
		svc, err := Wrap(cfg, model)
		require.NoError(t, err)

		got, err := svc.Answer(ctx, "How long is the warranty?", testResults())
		require.NoError(t, err)
		assert.Equal(t, DegradedAnswer, got.Text)
		require.Len(t, got.Sources, 2)
	})

	t.Run("Should reject a blank question", func(t *testing.T) {
		svc, err := Wrap(cfg, &stubModel{})
		require.NoError(t, err)
		_, err = svc.Answer(ctx, " ", testResults())
		require.Error(t, err)
	})
}
