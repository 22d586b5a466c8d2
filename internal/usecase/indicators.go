package usecase

import "math"

// rsiSeries computes Wilder-smoothed RSI over closes. The first period-1
// entries are NaN. Returns nil when there is not enough data.
func rsiSeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	rsi := make([]float64, len(closes))
	for i := 0; i < period-1; i++ {
		rsi[i] = math.NaN()
	}
	var gain, loss float64
	for i := 1; i < period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	rsi[period-1] = rsiValue(avgGain, avgLoss)
	for i := period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss = 0, 0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		rsi[i] = rsiValue(avgGain, avgLoss)
	}
	return rsi
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// emaSeries computes an exponential moving average seeded with the SMA of the
// first period values. Returns nil when there is not enough data.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
		out[i] = math.NaN()
	}
	out[period-1] = sum / float64(period)
	k := 2.0 / (float64(period) + 1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// macdHistogram computes the latest MACD(12,26,9) histogram value.
func macdHistogram(closes []float64) (float64, bool) {
	fast := emaSeries(closes, 12)
	slow := emaSeries(closes, 26)
	if fast == nil || slow == nil {
		return 0, false
	}
	macdLine := make([]float64, 0, len(closes))
	for i := range closes {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) {
			continue
		}
		macdLine = append(macdLine, fast[i]-slow[i])
	}
	signal := emaSeries(macdLine, 9)
	if signal == nil {
		return 0, false
	}
	last := len(macdLine) - 1
	if math.IsNaN(signal[last]) {
		return 0, false
	}
	return macdLine[last] - signal[last], true
}

// averageTrueRange computes the latest ATR over highs/lows/closes.
func averageTrueRange(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}
	var sum float64
	for i := n - period; i < n; i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period), true
}
