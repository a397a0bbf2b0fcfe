package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"escrowops/internal/botconfig/models"
	"escrowops/pkg/platform/circuit"
	"escrowops/pkg/platform/sentinel"
)

// HTTP proxies templates to the bot-config collaborator. Reads keep
// answering with the last templates seen while the circuit is open;
// writes never fall back.
type HTTP struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger

	mu        sync.RWMutex
	lastKnown *models.Messages
}

type HTTPOption func(*HTTP)

func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(h *HTTP) {
		h.breaker = b
	}
}

func NewHTTP(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: circuit.New("bot-config"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTP) Load(ctx context.Context) (*models.Messages, error) {
	m, err := h.fetch(ctx)
	if err == nil || errors.Is(err, sentinel.ErrNotFound) {
		h.success(ctx)
		if m != nil {
			h.remember(*m)
		}
		return m, err
	}

	useFallback, change := h.breaker.RecordFailure()
	if change.Opened {
		h.logger.WarnContext(ctx, "bot-config circuit opened", "error", err)
	}
	if useFallback {
		if last := h.last(); last != nil {
			return last, nil
		}
	}
	return nil, fmt.Errorf("load bot messages: %w: %w", sentinel.ErrUnavailable, err)
}

func (h *HTTP) Save(ctx context.Context, m models.Messages) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode bot messages: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build bot messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.breaker.RecordFailure()
		return fmt.Errorf("save bot messages: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		h.breaker.RecordFailure()
		return fmt.Errorf("save bot messages: %w: bot-config returned %s", sentinel.ErrUnavailable, resp.Status)
	}
	h.success(ctx)
	h.remember(m)
	return nil
}

func (h *HTTP) fetch(ctx context.Context) (*models.Messages, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v1/messages", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, sentinel.ErrNotFound
	default:
		return nil, fmt.Errorf("bot-config returned %s", resp.Status)
	}
	var m models.Messages
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode bot messages: %w", err)
	}
	return &m, nil
}

func (h *HTTP) success(ctx context.Context) {
	if _, change := h.breaker.RecordSuccess(); change.Closed {
		h.logger.InfoContext(ctx, "bot-config circuit closed")
	}
}

func (h *HTTP) remember(m models.Messages) {
	cp := m.Clone()
	h.mu.Lock()
	h.lastKnown = &cp
	h.mu.Unlock()
}

func (h *HTTP) last() *models.Messages {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastKnown == nil {
		return nil
	}
	cp := h.lastKnown.Clone()
	return &cp
}
