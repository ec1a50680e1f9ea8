package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/cellardex/cellarid/internal/model"
	"github.com/cellardex/cellarid/internal/resilience"
	"github.com/cellardex/cellarid/pkg/anthropic"
)

// ProviderAnthropic is the circuit-breaker key for the Anthropic adapter.
const ProviderAnthropic = "anthropic"

// AnthropicAdapter implements Adapter on top of pkg/anthropic. Outbound calls
// are rate limited per process; non-streaming calls retry transient failures.
type AnthropicAdapter struct {
	client  anthropic.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewAnthropicAdapter creates an adapter with the given requests-per-second
// limit (0 disables limiting).
func NewAnthropicAdapter(client anthropic.Client, rps float64, retry resilience.RetryConfig) *AnthropicAdapter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &AnthropicAdapter{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
	}
}

// Provider returns the breaker key.
func (a *AnthropicAdapter) Provider() string {
	return ProviderAnthropic
}

// Stream starts a streaming call for the tier.
func (a *AnthropicAdapter) Stream(ctx context.Context, p Prompt, tier model.TierConfig) (TokenStream, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ms, err := a.client.StreamMessage(ctx, a.buildRequest(p, tier))
	if err != nil {
		return nil, classify(err)
	}
	return &anthropicStream{inner: ms}, nil
}

// Complete performs a non-streaming call for the tier, retrying transient
// failures.
func (a *AnthropicAdapter) Complete(ctx context.Context, p Prompt, tier model.TierConfig) (*Completion, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	retryCfg := a.retry
	retryCfg.OnRetry = resilience.RetryLogger(ProviderAnthropic, string(tier.Name))

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := a.client.CreateMessage(ctx, a.buildRequest(p, tier))
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		// The model declined or returned nothing. Not a provider failure.
		return nil, resilience.NewParseFailureError(eris.New("llm: empty response"), "")
	}

	return &Completion{
		Text: text,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

func (a *AnthropicAdapter) buildRequest(p Prompt, tier model.TierConfig) anthropic.MessageRequest {
	msg := anthropic.Message{Role: "user", Content: p.User}
	if p.Image != nil {
		msg.Image = &anthropic.ImageBlock{
			MediaType: p.Image.MediaType,
			Data:      p.Image.Data,
		}
	}

	return anthropic.MessageRequest{
		Model:       tier.Model,
		MaxTokens:   tier.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(p.System),
		Messages:    []anthropic.Message{msg},
		Temperature: tier.Temperature,
	}
}

// anthropicStream adapts the wrapper stream and classifies terminal errors.
type anthropicStream struct {
	inner anthropic.MessageStream
}

func (s *anthropicStream) Next() bool {
	return s.inner.Next()
}

func (s *anthropicStream) Text() string {
	return s.inner.Text()
}

func (s *anthropicStream) Usage() model.TokenUsage {
	u := s.inner.Usage()
	return model.TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
	}
}

func (s *anthropicStream) Err() error {
	if err := s.inner.Err(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *anthropicStream) Close() error {
	return s.inner.Close()
}

// classify maps a raw provider error into the resilience taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if status, ok := anthropic.StatusCode(err); ok {
		if resilience.IsTransientHTTPStatus(status) || status == 529 {
			return resilience.NewTransportError(err, status)
		}
		return resilience.NewProviderRejectedError(err, status)
	}

	// No HTTP status: the request never got a response, so treat it as a
	// transport-level failure.
	return resilience.NewTransportError(err, 0)
}
