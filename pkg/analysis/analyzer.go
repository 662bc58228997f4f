// Package analysis asks the suggestion model for a marker-based optimization
// of a document and extracts the usable payload from its reply.
package analysis

import (
	"context"
	"net/http"
	"time"

	"github.com/odvcencio/diffapply/pkg/config"
	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/model"
)

// ServiceName is the human name of the suggestion service.
const ServiceName = "OpenRouter"

// Attribution headers OpenRouter uses to identify the calling app.
const (
	AppReferer = "https://github.com/odvcencio/diffapply"
	AppTitle   = "diffapply"
)

// Options carries the optional collaborators of an Analyzer.
type Options struct {
	Logger        *logging.Logger
	NetworkLogDir string
	Transport     http.RoundTripper
}

// Analyzer produces optimization suggestions.
type Analyzer struct {
	client      *model.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *logging.Logger
}

// New creates an Analyzer for the suggestion service described by cfg.
func New(cfg config.SuggestionConfig, opts Options) *Analyzer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	client := model.NewClient(cfg.APIKey, cfg.BaseURL, model.ClientOptions{
		Service: "suggestion",
		Headers: map[string]string{
			"HTTP-Referer": AppReferer,
			"X-Title":      AppTitle,
		},
		Timeout:       timeout,
		NetworkLogDir: opts.NetworkLogDir,
		Transport:     opts.Transport,
		Logger:        opts.Logger,
	})
	return &Analyzer{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		logger:      opts.Logger,
	}
}

// Analyze returns the extracted suggestion payload for source. An empty
// string means the model had no usable suggestion.
func (a *Analyzer) Analyze(ctx context.Context, source, language string) (string, error) {
	if !a.client.HasAPIKey() {
		return "", model.Classify(ServiceName, config.SettingSuggestionKey, model.ErrMissingAPIKey)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	_ = a.logger.Info(logging.CategoryAnalysis, "analysis.request", "", map[string]any{
		"model":       a.model,
		"language":    languageName(language),
		"source_size": len(source),
	})

	resp, err := a.client.ChatCompletion(ctx, model.ChatRequest{
		Model: a.model,
		Messages: []model.Message{
			{Role: "system", Content: SystemPrompt(language)},
			{Role: "user", Content: UserPrompt(source, language)},
		},
		MaxTokens:   a.maxTokens,
		Temperature: model.Temperature(a.temperature),
	})
	if err != nil {
		classified := model.Classify(ServiceName, config.SettingSuggestionKey, err)
		_ = a.logger.Error(logging.CategoryAnalysis, "analysis.failed", classified.Error(), map[string]any{
			"model": a.model,
		})
		return "", classified
	}

	raw := resp.FirstContent()
	payload := ExtractPayload(raw)
	_ = a.logger.Debug(logging.CategoryAnalysis, "analysis.response", raw, map[string]any{
		"raw_size":     len(raw),
		"payload_size": len(payload),
		"edits":        CountEdits(payload),
	})
	return payload, nil
}

// Health reports the state of the remote service's circuit breaker.
func (a *Analyzer) Health() model.Health {
	return a.client.Health()
}

// Close releases the underlying client.
func (a *Analyzer) Close() error {
	return a.client.Close()
}
