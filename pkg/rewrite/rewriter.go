// Package rewrite asks the apply model to materialize a full rewritten file
// from the original text and a marker-based suggestion.
package rewrite

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/odvcencio/diffapply/pkg/config"
	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/model"
)

// ServiceName is the human name of the rewrite service.
const ServiceName = "Morph"

// Instruction tells the apply model what the update section means.
const Instruction = "Apply the optimization changes specified in the update section to improve code performance and reduce complexity. Maintain the original functionality."

// Prompt builds the single user message sent to the apply model.
func Prompt(original, diff string) string {
	return fmt.Sprintf("<instruction>%s</instruction>\n<code>%s</code>\n<update>%s</update>", Instruction, original, diff)
}

// Options carries the optional collaborators of a Rewriter.
type Options struct {
	Logger        *logging.Logger
	NetworkLogDir string
	Transport     http.RoundTripper
}

// Rewriter calls the apply model.
type Rewriter struct {
	client  *model.Client
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

// New creates a Rewriter for the service described by cfg.
func New(cfg config.RewriteConfig, opts Options) *Rewriter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	return &Rewriter{
		client: model.NewClient(cfg.APIKey, cfg.BaseURL, model.ClientOptions{
			Service:       "rewrite",
			Timeout:       timeout,
			NetworkLogDir: opts.NetworkLogDir,
			Transport:     opts.Transport,
			Logger:        opts.Logger,
		}),
		model:   cfg.Model,
		timeout: timeout,
		logger:  opts.Logger,
	}
}

// Rewrite returns the first candidate's content verbatim. An empty string
// means the service produced nothing; callers must treat that as failure.
func (r *Rewriter) Rewrite(ctx context.Context, original, diff string) (string, error) {
	if !r.client.HasAPIKey() {
		return "", model.Classify(ServiceName, config.SettingRewriteKey, model.ErrMissingAPIKey)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.ChatCompletion(ctx, model.ChatRequest{
		Model:    r.model,
		Messages: []model.Message{{Role: "user", Content: Prompt(original, diff)}},
	})
	if err != nil {
		classified := model.Classify(ServiceName, config.SettingRewriteKey, err)
		_ = r.logger.Error(logging.CategoryRewrite, "rewrite.failed", classified.Error(), map[string]any{
			"model":         r.model,
			"original_size": len(original),
			"diff_size":     len(diff),
		})
		return "", classified
	}

	content := resp.FirstContent()
	_ = r.logger.Info(logging.CategoryRewrite, "rewrite.response", "", map[string]any{
		"model":        r.model,
		"choices":      len(resp.Choices),
		"content_size": len(content),
	})
	return content, nil
}

// Health reports the state of the remote service's circuit breaker.
func (r *Rewriter) Health() model.Health {
	return r.client.Health()
}

// Close releases the underlying client.
func (r *Rewriter) Close() error {
	return r.client.Close()
}
