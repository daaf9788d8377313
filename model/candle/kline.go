package candle

// Kline is the adapter-layer representation of an exchange candlestick.
// Hosts convert it into protocol commands; the chart itself only sees Candle.
type Kline struct {
	Exchange  string
	Symbol    string
	Interval  string
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
	IsClosed  bool
}

// Candle returns the OHLC part of k keyed by its open time.
func (k Kline) Candle() Candle {
	return Candle{Time: k.OpenTime, Open: k.Open, High: k.High, Low: k.Low, Close: k.Close}
}
