package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type TierPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

type ManagerConfig struct {
	Timeout int
	Prices  map[string]TierPrice
}

// Manager fronts one generator per cost tier plus the embedder; callers
// never touch providers directly.
type Manager struct {
	cheap    IGenerator
	capable  IGenerator
	embedder IEmbedder
	cfg      ManagerConfig
}

func NewManager(cheap, capable IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		cheap:    cheap,
		capable:  capable,
		embedder: embedder,
		cfg:      cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) Generate(ctx context.Context, tier string, prompt string) (string, TokenUsage, error) {
	gen := m.generatorFor(tier)
	if gen == nil {
		return "", TokenUsage{}, fmt.Errorf("no generator for tier %q", tier)
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, usage, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", usage, err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", usage, fmt.Errorf("empty ai response")
	}
	return text, usage, nil
}

func (m *Manager) generatorFor(tier string) IGenerator {
	switch tier {
	case "capable":
		if m.capable != nil {
			return m.capable
		}
		return m.cheap
	default:
		if m.cheap != nil {
			return m.cheap
		}
		return m.capable
	}
}

// Cost is the approximate dollar cost of one call given the configured
// per-1k token prices; zero when no price is configured for the tier.
func (m *Manager) Cost(tier string, usage TokenUsage) float64 {
	price, ok := m.cfg.Prices[tier]
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1000*price.InputPer1K +
		float64(usage.OutputTokens)/1000*price.OutputPer1K
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}
