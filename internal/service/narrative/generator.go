package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SigTrail/internal/domain/models"
	dservice "SigTrail/internal/domain/service"
	"SigTrail/pkg/logger"
	xhttp "SigTrail/pkg/http"
)

// Generator produces a human-readable explanation for a tracked signal.
// It posts signal context to an external text service and falls back to a
// deterministic template when the service is unreachable; Describe never
// fails.
type Generator struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
	l        *logger.Logger
}

// Option configures Generator.
type Option func(*Generator)

// WithTimeout bounds a single generation request.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.client = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

// WithAttempts sets how many times a generation request is tried.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// New creates a narrative generator. An empty baseURL disables the remote
// service and every call uses the fallback template.
func New(baseURL string, l *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		baseURL:  baseURL,
		client:   xhttp.NewClient(xhttp.WithTimeout(5 * time.Second)),
		attempts: 2,
		l:        l,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type generateRequest struct {
	Symbol     string   `json:"symbol"`
	Timeframe  string   `json:"timeframe"`
	Direction  string   `json:"direction"`
	Confidence float64  `json:"confidence"`
	EntryPrice float64  `json:"entry_price"`
	TakeProfit float64  `json:"take_profit"`
	StopLoss   float64  `json:"stop_loss"`
	Level      string   `json:"level"`
	Supporting []string `json:"supporting"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Describe returns a narrative for the signal, marking which source produced
// it.
func (g *Generator) Describe(ctx context.Context, s models.Signal, conf models.Confluence) dservice.Narrative {
	if g.baseURL != "" {
		if text, err := g.generate(ctx, s, conf); err == nil && text != "" {
			return dservice.Narrative{Text: text, Source: dservice.NarrativeGenerated}
		} else if err != nil {
			g.l.Warn("narrative service failed, using fallback",
				logger.String("signal_id", s.ID),
				logger.Error(err))
		}
	}
	return dservice.Narrative{Text: fallbackText(s, conf), Source: dservice.NarrativeFallback}
}

func (g *Generator) generate(ctx context.Context, s models.Signal, conf models.Confluence) (string, error) {
	payload := generateRequest{
		Symbol:     s.Symbol,
		Timeframe:  s.Timeframe,
		Direction:  string(s.Direction),
		Confidence: s.Confidence,
		EntryPrice: s.EntryPrice,
		TakeProfit: s.TakeProfit,
		StopLoss:   s.StopLoss,
		Level:      string(conf.Level),
		Supporting: conf.Supporting,
	}

	var err error
	for i := 1; i <= g.attempts; i++ {
		var resp generateResponse
		err = g.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    g.baseURL + "/v1/narratives",
			Body:   payload,
		}, &resp)
		if err == nil {
			return strings.TrimSpace(resp.Text), nil
		}
		select {
		case <-time.After(time.Duration(i) * 100 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("generate narrative: %w", err)
}

func fallbackText(s models.Signal, conf models.Confluence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s on %s (%s confluence", s.Direction, s.Symbol, s.Timeframe, strings.ToLower(string(conf.Level)))
	if len(conf.Supporting) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(conf.Supporting, ", "))
	}
	b.WriteString("). ")
	fmt.Fprintf(&b, "Entry %.8g, target %.8g, stop %.8g.", s.EntryPrice, s.TakeProfit, s.StopLoss)
	return b.String()
}

var _ dservice.NarrativeGenerator = (*Generator)(nil)
