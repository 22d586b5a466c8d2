package pricestream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	drepo "SigTrail/internal/domain/repository"
	"SigTrail/pkg/logger"

	"github.com/gorilla/websocket"
)

// Stream maintains a live last-trade price per symbol over a WebSocket feed.
// Timeout evaluations read the freshest observed price from here when it is
// newer than the last closed bar.
type Stream struct {
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	l       *logger.Logger
	metrics drepo.Metrics

	mu   sync.RWMutex
	conn *websocket.Conn
	last map[string]tick
}

type tick struct {
	price float64
	at    time.Time
}

// Option configures Stream.
type Option func(*Stream)

// WithMetrics publishes the last observed price per symbol.
func WithMetrics(m drepo.Metrics) Option {
	return func(s *Stream) { s.metrics = m }
}

// WithReconnectDelay sets the pause between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// New creates a price stream for the given symbols.
func New(url string, symbols []string, l *logger.Logger, opts ...Option) *Stream {
	s := &Stream{
		url:            url,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		l:              l,
		last:           make(map[string]tick),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LastPrice returns the most recent streamed price for symbol.
func (s *Stream) LastPrice(symbol string) (float64, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.last[strings.ToUpper(symbol)]
	if !ok {
		return 0, time.Time{}, false
	}
	return t.price, t.at, true
}

// Run connects and consumes the feed until ctx is cancelled, reconnecting on
// read failures.
func (s *Stream) Run(ctx context.Context) error {
	if s.url == "" || len(s.symbols) == 0 {
		s.l.Info("price stream disabled")
		<-ctx.Done()
		return nil
	}

	for {
		if err := s.connect(ctx); err != nil {
			s.l.Warn("price stream connect failed", logger.Error(err))
			if !s.sleep(ctx) {
				return nil
			}
			continue
		}

		err := s.consume(ctx)
		s.closeConn()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.l.Warn("price stream disconnected", logger.Error(err))
		}
		if !s.sleep(ctx) {
			return nil
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}

	for _, sym := range s.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.l.Info("price stream connected", logger.Int("symbols", len(s.symbols)))
	return nil
}

type streamTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type streamMessage struct {
	Type string        `json:"type"`
	Data []streamTrade `json:"data"`
}

func (s *Stream) consume(ctx context.Context) error {
	conn := s.currentConn()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var m streamMessage
		if err := json.Unmarshal(b, &m); err != nil {
			// ignore non-trade frames
			continue
		}
		if m.Type != "trade" {
			continue
		}
		for _, d := range m.Data {
			s.record(d)
		}
	}
}

func (s *Stream) record(d streamTrade) {
	symbol := strings.ToUpper(d.S)
	at := time.UnixMilli(d.T).UTC()

	s.mu.Lock()
	prev, ok := s.last[symbol]
	if !ok || at.After(prev.at) {
		s.last[symbol] = tick{price: d.P, at: at}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordLastPrice(symbol, d.P)
	}
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.WriteMessage(websocket.PingMessage, nil)
		}
	}
}

func (s *Stream) currentConn() *websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Stream) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Stream) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.reconnectDelay):
		return true
	}
}

var _ drepo.LastPriceSource = (*Stream)(nil)
