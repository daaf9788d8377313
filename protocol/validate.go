package protocol

import (
	"math"
	"strconv"
)

// Validate checks the values of an already typed command: prices are finite,
// volumes are finite and non-negative, chart types are known. Decode runs it
// on every record; callers that build commands directly must run it too.
// Every failure is a *ProtocolError.
func Validate(cmd Command) error {
	if cmd == nil {
		return &ProtocolError{Reason: "nil command"}
	}
	var err *ProtocolError
	switch c := cmd.(type) {
	case Initialize:
		err = checkChartType(c.Kind(), "chartType", c.ChartType)
	case SetData:
		for i, in := range c.Candles {
			err = checkBar(c.Kind()+".candles["+strconv.Itoa(i)+"]", in.Open, in.High, in.Low, in.Close, in.Volume)
			if err != nil {
				break
			}
		}
	case AddTick:
		err = checkBar(c.Kind(), c.Open, c.High, c.Low, c.Close, c.Volume)
	case ChangeChartType:
		err = checkChartType(c.Kind(), "chartType", c.Type)
	case HighlightPrice:
		err = checkFinite(c.Kind(), "price", c.Price)
	}
	if err != nil {
		return err
	}
	return nil
}

func checkBar(cmd string, open, high, low, last float64, volume *float64) *ProtocolError {
	for _, f := range []struct {
		name string
		v    float64
	}{{"open", open}, {"high", high}, {"low", low}, {"close", last}} {
		if err := checkFinite(cmd, f.name, f.v); err != nil {
			return err
		}
	}
	if volume == nil {
		return nil
	}
	if err := checkFinite(cmd, "volume", *volume); err != nil {
		return err
	}
	if *volume < 0 {
		return fieldErr(cmd, "volume", "negative volume")
	}
	return nil
}

func checkFinite(cmd, field string, v float64) *ProtocolError {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fieldErr(cmd, field, "not a finite number")
	}
	return nil
}

func checkChartType(cmd, field string, ct ChartType) *ProtocolError {
	if _, ok := ParseChartType(string(ct)); !ok {
		return fieldErr(cmd, field, "unknown chart type "+string(ct))
	}
	return nil
}
