package vocab

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// messenger is the slice of the Anthropic API the provider needs; tests
// stub it.
type messenger interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type sdkMessenger struct {
	client sdk.Client
	model  string
}

func (m *sdkMessenger) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := m.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(m.model),
		MaxTokens: 1024,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(user))},
	})
	if err != nil {
		return "", eris.Wrap(err, "vocab: create message")
	}
	var b strings.Builder
	for _, block := range msg.Content {
		b.WriteString(block.Text)
	}
	zap.L().Debug("vocab: llm usage",
		zap.String("model", m.model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return b.String(), nil
}

const llmSystemPrompt = `You resolve numismatic vocabulary terms against standard reference terminology.
Given a term and a category, answer with a JSON array of candidate canonical
terms: [{"term": "...", "score": 0.0-1.0}]. Answer with the JSON only. An
empty array means no plausible match.`

// LLMProvider asks an Anthropic model to resolve a term. Its answers are an
// untrusted source like any other: they feed the same trust gates and are
// never applied without passing them.
type LLMProvider struct {
	messenger messenger
	model     string
}

// NewLLMProvider builds a provider over the Anthropic API.
func NewLLMProvider(apiKey, model string) *LLMProvider {
	return &LLMProvider{
		messenger: &sdkMessenger{
			client: sdk.NewClient(option.WithAPIKey(apiKey)),
			model:  model,
		},
		model: model,
	}
}

type llmCandidate struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

func (p *LLMProvider) Lookup(ctx context.Context, term, category string) ([]Match, error) {
	raw, err := p.messenger.Complete(ctx, llmSystemPrompt,
		`Category: `+category+"\nTerm: "+term)
	if err != nil {
		return nil, err
	}

	var candidates []llmCandidate
	if err := json.Unmarshal([]byte(extractJSON(raw)), &candidates); err != nil {
		zap.L().Warn("vocab: unparseable llm answer", zap.String("raw", raw), zap.Error(err))
		return nil, eris.Wrap(err, "vocab: decode llm answer")
	}

	q := Normalize(term)
	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c.Term == "" {
			continue
		}
		if c.Score < 0 {
			c.Score = 0
		}
		if c.Score > 1 {
			c.Score = 1
		}
		out = append(out, Match{
			Term:       c.Term,
			Score:      c.Score,
			Source:     "llm",
			Category:   category,
			Normalized: q,
		})
	}
	return out, nil
}

// extractJSON tolerates prose or fencing around the JSON array.
func extractJSON(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
