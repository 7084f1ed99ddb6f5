// internal/workers/extraction/extract-payment-info/handler.go
package extractpaymentinfo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/common/metrics"
	"transfer-reconciler/internal/models"
)

const TaskType = "extract-payment-info"

var (
	ErrEmptyEmail       = errors.New("EMPTY_EMAIL")
	ErrExtractionFailed = errors.New("EXTRACTION_FAILED")
	ErrUnknownStrategy  = errors.New("UNKNOWN_STRATEGY")
)

// TemplateSource supplies the active bank templates.
type TemplateSource interface {
	ListActive(ctx context.Context) ([]models.BankTemplate, error)
}

type templateCacheEntry struct {
	templates []models.BankTemplate
	loadedAt  time.Time
}

type Handler struct {
	config     *Config
	templates  TemplateSource
	strategies []Strategy
	logger     logger.Logger
	now        func() time.Time

	mu    sync.RWMutex
	cache *templateCacheEntry
}

type Option func(*Handler)

// WithStrategies replaces the configured strategy order.
func WithStrategies(strategies ...Strategy) Option {
	return func(h *Handler) {
		h.strategies = strategies
	}
}

func NewHandler(config *Config, templates TemplateSource, log logger.Logger, opts ...Option) (*Handler, error) {
	if config == nil {
		config = LoadConfig()
	}
	strategies, err := buildStrategies(config, config.Strategies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, err)
	}

	h := &Handler{
		config:     config,
		templates:  templates,
		strategies: strategies,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// NewStrategy returns the built-in strategy registered under name, for use
// with WithStrategies.
func NewStrategy(config *Config, name string) (Strategy, error) {
	s, err := buildStrategies(config, []string{name})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, err)
	}
	return s[0], nil
}

// Execute runs extraction for the diagnostics endpoint.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.TextBody == "" && input.HTMLBody == "" {
		return nil, ErrEmptyEmail
	}

	result := h.Extract(ctx, input.toEmail())
	if !result.Success {
		diag := result.Diagnostics
		return &Output{Diagnostics: &diag}, ErrExtractionFailed
	}
	return &Output{Data: result.Data, Method: result.Method}, nil
}

// Extract runs the strategy chain over e. It never returns an error; a
// failure is reported through Result.Success and Diagnostics.
func (h *Handler) Extract(ctx context.Context, e *models.InboundEmail) (result *Result) {
	if e == nil {
		e = &models.InboundEmail{}
	}
	result = &Result{}
	diag := &result.Diagnostics
	diag.Steps = []string{}
	diag.Errors = []string{}

	defer func() {
		if r := recover(); r != nil {
			diag.fail(fmt.Sprintf("panic during extraction: %v", r))
			result.Success = false
			result.Data = nil
			result.Method = ""
			h.logger.Error("extraction panicked", map[string]interface{}{
				"emailId": e.ID,
				"panic":   fmt.Sprint(r),
			})
		}
		metrics.ExtractionOutcomes.WithLabelValues(methodLabel(result.Method), strconv.FormatBool(result.Success)).Inc()
	}()

	diag.TextLength = len(e.TextBody)
	diag.HTMLLength = len(e.HTMLBody)
	diag.TextPreview = preview(e.TextBody, h.config.PreviewLength)
	diag.HTMLPreview = preview(e.HTMLBody, h.config.PreviewLength)

	if e.TextBody == "" && e.HTMLBody == "" {
		diag.fail("email has no text or html body")
		return result
	}

	doc := newDocument(e, h.loadTemplates(ctx, diag))
	diag.step(fmt.Sprintf("prepared document (%d table rows, %d templates)", len(doc.Rows), len(doc.Templates)))

	for _, s := range h.strategies {
		diag.step("try " + s.Name())
		data, ok := s.Attempt(doc, diag)
		if !ok {
			continue
		}
		if s.Name() != StrategyLabelledFields {
			enrich(doc, data)
		}
		if data.Amount.GreaterThanOrEqual(h.config.AmountCeiling) {
			diag.fail(fmt.Sprintf("%s: amount %s at or above ceiling", s.Name(), data.Amount))
			continue
		}
		result.Success = true
		result.Data = data
		result.Method = s.Name()
		diag.step(fmt.Sprintf("%s succeeded with amount %s", s.Name(), data.Amount.StringFixed(2)))

		h.logger.Debug("payment info extracted", map[string]interface{}{
			"emailId": e.ID,
			"method":  s.Name(),
			"amount":  data.Amount.String(),
		})
		return result
	}

	diag.fail("no strategy produced an amount")
	h.logger.Info("extraction failed", map[string]interface{}{
		"emailId": e.ID,
		"subject": e.Subject,
		"errors":  len(diag.Errors),
	})
	return result
}

// loadTemplates serves active templates from a short-lived cache. A load
// error degrades to the stale cache, or none.
func (h *Handler) loadTemplates(ctx context.Context, diag *Diagnostics) []models.BankTemplate {
	if h.templates == nil {
		return nil
	}

	h.mu.RLock()
	entry := h.cache
	h.mu.RUnlock()
	if entry != nil && h.now().Sub(entry.loadedAt) < h.config.TemplateCacheTTL {
		return entry.templates
	}

	templates, err := h.templates.ListActive(ctx)
	if err != nil {
		diag.fail("load bank templates: " + err.Error())
		h.logger.Warn("failed to load bank templates", map[string]interface{}{"error": err.Error()})
		if entry != nil {
			return entry.templates
		}
		return nil
	}

	h.mu.Lock()
	h.cache = &templateCacheEntry{templates: templates, loadedAt: h.now()}
	h.mu.Unlock()
	return templates
}

// InvalidateTemplates forces the next extraction to reload templates.
func (h *Handler) InvalidateTemplates() {
	h.mu.Lock()
	h.cache = nil
	h.mu.Unlock()
}

func methodLabel(m string) string {
	if m == "" {
		return "none"
	}
	return m
}
