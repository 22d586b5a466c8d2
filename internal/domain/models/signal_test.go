package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalValidate(t *testing.T) {
	valid := func() Signal {
		return Signal{
			Symbol:     "BTCUSDT",
			Timeframe:  "1h",
			Direction:  DirectionBuy,
			Confidence: 70,
			EntryPrice: 100,
			TakeProfit: 110,
			StopLoss:   95,
		}
	}

	t.Run("valid buy", func(t *testing.T) {
		s := valid()
		assert.NoError(t, s.Validate())
	})

	t.Run("valid sell", func(t *testing.T) {
		s := valid()
		s.Direction = DirectionSell
		s.TakeProfit = 90
		s.StopLoss = 105
		assert.NoError(t, s.Validate())
	})

	cases := []struct {
		name   string
		mutate func(*Signal)
		field  string
	}{
		{"missing symbol", func(s *Signal) { s.Symbol = "" }, "symbol"},
		{"missing timeframe", func(s *Signal) { s.Timeframe = "" }, "timeframe"},
		{"unknown direction", func(s *Signal) { s.Direction = "HOLD" }, "direction"},
		{"confidence above 100", func(s *Signal) { s.Confidence = 101 }, "confidence"},
		{"negative confidence", func(s *Signal) { s.Confidence = -1 }, "confidence"},
		{"zero entry", func(s *Signal) { s.EntryPrice = 0 }, "prices"},
		{"negative stop", func(s *Signal) { s.StopLoss = -1 }, "prices"},
		{"buy stop above entry", func(s *Signal) { s.StopLoss = 105 }, "prices"},
		{"buy target below entry", func(s *Signal) { s.TakeProfit = 99 }, "prices"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(&s)
			err := s.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	t.Run("sell bracket must invert", func(t *testing.T) {
		s := valid()
		s.Direction = DirectionSell
		// BUY-shaped bracket on a SELL signal.
		err := s.Validate()
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "prices", verr.Field)
	})
}

func TestSignalDirectionSign(t *testing.T) {
	buy := Signal{Direction: DirectionBuy}
	sell := Signal{Direction: DirectionSell}
	assert.Equal(t, 1.0, buy.DirectionSign())
	assert.Equal(t, -1.0, sell.DirectionSign())
}

func TestSignalIsTerminal(t *testing.T) {
	for state, terminal := range map[State]bool{
		StatePending:   false,
		StateExecuted:  false,
		StateEvaluated: true,
		StateExpired:   true,
	} {
		s := Signal{State: state}
		assert.Equal(t, terminal, s.IsTerminal(), "state %s", state)
	}
}

func TestLevelForScore(t *testing.T) {
	cases := []struct {
		score float64
		level ConfluenceLevel
	}{
		{0, ConfluenceLow},
		{0.5, ConfluenceLow},
		{0.51, ConfluenceMedium},
		{0.7, ConfluenceMedium},
		{0.71, ConfluenceHigh},
		{1.0, ConfluenceHigh},
		{-0.55, ConfluenceMedium},
		{-0.9, ConfluenceHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelForScore(tc.score), "score %.2f", tc.score)
	}
}
