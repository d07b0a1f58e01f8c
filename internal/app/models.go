package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/watchnode/internal/ai"
	"github.com/smazurov/watchnode/internal/config"
)

// modelSwitch is the analyzer handed to the runner. It rebuilds the Gemini
// client when the AI settings change so a reload never restarts jobs.
type modelSwitch struct {
	logger *slog.Logger

	mu     sync.RWMutex
	cfg    config.AIConfig
	client *ai.GeminiClient
}

func newModelSwitch(logger *slog.Logger) *modelSwitch {
	return &modelSwitch{logger: logger}
}

// update swaps the client when cfg differs from the current one.
func (m *modelSwitch) update(cfg config.AIConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.cfg == cfg {
		return
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	m.client = ai.NewGemini(cfg.APIKey, cfg.Model, cfg.BaseURL, timeout, m.logger)
	m.cfg = cfg
	if !m.client.Enabled() {
		m.logger.Warn("AI analysis disabled: no api key configured")
	}
}

func (m *modelSwitch) current() *ai.GeminiClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

func (m *modelSwitch) Analyze(ctx context.Context, frame []byte, prompt string, refs []ai.Reference) (ai.Result, error) {
	c := m.current()
	if c == nil {
		return ai.Result{}, ai.ErrDisabled
	}
	return c.Analyze(ctx, frame, prompt, refs)
}

func (m *modelSwitch) AnalyzeMany(ctx context.Context, frames []ai.Image, prompt string, refs []ai.Reference) (ai.MultiResult, error) {
	c := m.current()
	if c == nil {
		return ai.MultiResult{}, ai.ErrDisabled
	}
	return c.AnalyzeMany(ctx, frames, prompt, refs)
}

// ListModels lists the models available to the configured key.
func (m *modelSwitch) ListModels(ctx context.Context) ([]string, error) {
	c := m.current()
	if c == nil {
		return nil, ai.ErrDisabled
	}
	return c.ListModels(ctx)
}
