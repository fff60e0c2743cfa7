package letter

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerate(t *testing.T) {
	m := &fakeModel{reply: "  Dear team, I build Go services.  \n"}
	g := New(m)

	got, err := g.Generate(context.Background(), "Go engineer, 5 years", "Backend developer at Acme")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Dear team, I build Go services." {
		t.Errorf("letter = %q", got)
	}

	if len(m.messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(m.messages))
	}
	if m.messages[0].Role != llms.ChatMessageTypeSystem || m.messages[1].Role != llms.ChatMessageTypeHuman {
		t.Errorf("roles = %s, %s", m.messages[0].Role, m.messages[1].Role)
	}
	system := m.messages[0].Parts[0].(llms.TextContent).Text
	for _, want := range []string{"Go engineer, 5 years", "Backend developer at Acme"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
		want  error
	}{
		{"empty reply", &fakeModel{reply: "   "}, ErrEmpty},
		{"model error", &fakeModel{err: context.DeadlineExceeded}, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.model).Generate(context.Background(), "r", "p")
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("привет", 3); got != "при" {
		t.Errorf("truncate = %q, want при", got)
	}
	if got := truncate("ok", 3); got != "ok" {
		t.Errorf("truncate = %q, want ok", got)
	}
}
