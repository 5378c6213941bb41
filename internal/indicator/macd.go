package indicator

// MACD computes the MACD line, the signal line and the histogram for
// the given fast/slow/signal periods.
func MACD(prices []float64, fast, slow, signalPeriod int) (macd, signal, histogram []float64) {
	if len(prices) == 0 || fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return nil, nil, nil
	}
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)
	macd = make([]float64, len(prices))
	for i := range prices {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signal = EMA(macd, signalPeriod)
	histogram = make([]float64, len(prices))
	for i := range prices {
		histogram[i] = macd[i] - signal[i]
	}
	return macd, signal, histogram
}
