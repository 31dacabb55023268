package answer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pagedex/pagedex/engine/retriever"
	"github.com/pagedex/pagedex/pkg/logger"
)

// NoInformationAnswer is returned verbatim when retrieval produced nothing
// usable for the question.
const NoInformationAnswer = "I could not find relevant information in the uploaded documents to answer this question."

// NoValidDocumentsAnswer is returned when none of the documents named in a
// question are available for querying.
const NoValidDocumentsAnswer = "No valid documents selected. Please upload and select at least one document."

// DegradedAnswer is returned when the language model is unreachable; the
// caller still receives the sources so the passages remain usable.
const DegradedAnswer = "The answer could not be generated right now. The most relevant passages are listed in the sources."

// Provider enumerates supported answer model providers.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderGoogleAI Provider = "googleai"
)

// Config captures answer model settings.
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// Source cites one document that contributed to an answer.
type Source struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename,omitempty"`
	Pages      []int     `json:"pages,omitempty"`
	Relevance  float64   `json:"relevance"`
}

// Answer is the generated response plus its citations.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Service generates grounded answers from retrieved chunks.
type Service struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewService builds a provider-backed answer service.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("answer: config is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("answer: model is required")
	}
	model, err := buildModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(cfg, model)
}

// Wrap builds a service around an existing model.
func Wrap(cfg *Config, model llms.Model) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("answer: config is required")
	}
	if model == nil {
		return nil, errors.New("answer: model is required")
	}
	return &Service{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Answer synthesizes a response to the question from the retrieved chunks.
// With no chunks it returns the fixed no-information answer; when generation
// fails it degrades to the fixed degraded answer with sources attached.
func (s *Service) Answer(ctx context.Context, question string, results []retriever.Result) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("answer: question is required")
	}
	if len(results) == 0 {
		return &Answer{Text: NoInformationAnswer}, nil
	}
	sources := collectSources(results)
	prompt := buildPrompt(question, results)
	opts := []llms.CallOption{llms.WithTemperature(s.temperature)}
	if s.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.maxTokens))
	}
	text, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt, opts...)
	if err != nil {
		logger.FromContext(ctx).Warn("answer generation failed, degrading", "error", err)
		return &Answer{Text: DegradedAnswer, Sources: sources}, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return &Answer{Text: DegradedAnswer, Sources: sources}, nil
	}
	return &Answer{Text: text, Sources: sources}, nil
}

// buildPrompt lays out the retrieved passages with their page citations and
// instructs the model to answer only from them.
func buildPrompt(question string, results []retriever.Result) string {
	builder := strings.Builder{}
	builder.WriteString("Answer the question using only the context passages below. ")
	builder.WriteString("Cite the page numbers you used. ")
	builder.WriteString("If the context does not contain the answer, say so.\n\n")
	for i, result := range results {
		builder.WriteString(fmt.Sprintf("[Passage %d", i+1))
		if len(result.Pages) > 0 {
			builder.WriteString(fmt.Sprintf(", page %s", formatPages(result.Pages)))
		}
		builder.WriteString("]\n")
		builder.WriteString(result.Text)
		builder.WriteString("\n\n")
	}
	builder.WriteString("Question: ")
	builder.WriteString(question)
	builder.WriteString("\nAnswer:")
	return builder.String()
}

func formatPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, page := range pages {
		parts[i] = fmt.Sprint(page)
	}
	return strings.Join(parts, ", ")
}

// collectSources merges results into one citation per document, keeping the
// best relevance and the union of pages.
func collectSources(results []retriever.Result) []Source {
	byDoc := make(map[string]*Source)
	order := make([]string, 0)
	for _, result := range results {
		src, ok := byDoc[result.DocumentID]
		if !ok {
			src = &Source{DocumentID: result.DocumentID, Relevance: result.Relevance}
			byDoc[result.DocumentID] = src
			order = append(order, result.DocumentID)
		}
		if result.Relevance > src.Relevance {
			src.Relevance = result.Relevance
		}
		src.Pages = mergePages(src.Pages, result.Pages)
	}
	sources := make([]Source, 0, len(order))
	for _, id := range order {
		sources = append(sources, *byDoc[id])
	}
	return sources
}

func mergePages(existing, incoming []int) []int {
	seen := make(map[int]struct{}, len(existing)+len(incoming))
	merged := make([]int, 0, len(existing)+len(incoming))
	for _, page := range existing {
		if _, ok := seen[page]; !ok {
			seen[page] = struct{}{}
			merged = append(merged, page)
		}
	}
	for _, page := range incoming {
		if _, ok := seen[page]; !ok {
			seen[page] = struct{}{}
			merged = append(merged, page)
		}
	}
	sort.Ints(merged)
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func buildModel(ctx context.Context, cfg *Config) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("answer: initialize openai model: %w", err)
		}
		return model, nil
	case ProviderGoogleAI:
		opts := []googleai.Option{googleai.WithDefaultModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, googleai.WithAPIKey(cfg.APIKey))
		}
		model, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("answer: initialize googleai model: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("answer: provider %q is not supported", cfg.Provider)
	}
}
