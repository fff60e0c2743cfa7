// Package letter generates cover letters with a language model.
package letter

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmpty is returned when the model produced no text.
var ErrEmpty = errors.New("empty cover letter")

const systemPrompt = `You write short cover letters for job applications.
Use only facts from the candidate's résumé. Do not invent experience.
Write in the language of the job posting, at most 1200 characters, with no greeting placeholders
and no signature block.

### RÉSUMÉ:
%s

### JOB POSTING:
%s`

const userPrompt = "Write the cover letter."

// Max characters of each input passed to the model.
const maxInput = 12000

// Generator writes cover letters.
type Generator struct {
	model       llms.Model
	temperature float64
}

// New creates a Generator over any langchaingo model.
func New(model llms.Model) *Generator {
	return &Generator{model: model, temperature: 0.5}
}

// NewOpenAI creates a Generator backed by an OpenAI-compatible API.
func NewOpenAI(apiKey, model, baseURL string) (*Generator, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create openai client")
	}
	return New(llm), nil
}

// Generate writes a letter for the résumé and posting texts.
func (g *Generator) Generate(ctx context.Context, resumeText, postingText string) (string, error) {
	system := fmt.Sprintf(systemPrompt, truncate(resumeText, maxInput), truncate(postingText, maxInput))
	resp, err := g.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", errors.Wrap(err, "generate cover letter")
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmpty
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
