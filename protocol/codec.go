package protocol

import (
	"encoding/json"
	"math"
	"strconv"
)

// Record is the flat, self-describing wire form of a command or event.
// The "type" field holds the tag; other fields are camelCase.
type Record map[string]any

// maxExactInt is the largest integer a float64 holds without rounding.
const maxExactInt = 1 << 53

// DecodeJSON parses one JSON object and decodes it as a command.
func DecodeJSON(data []byte) (Command, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &ProtocolError{Reason: "malformed JSON: " + err.Error()}
	}
	return Decode(rec)
}

// Decode validates rec and returns the typed command it describes.
// Every failure is a *ProtocolError.
func Decode(rec Record) (Command, error) {
	if rec == nil {
		return nil, &ProtocolError{Reason: "empty record"}
	}
	tag, ok := rec["type"].(string)
	if !ok || tag == "" {
		return nil, &ProtocolError{Reason: `missing command "type"`}
	}
	d := decoder{cmd: tag, rec: rec}

	var cmd Command
	switch tag {
	case TypeInitialize:
		cmd = Initialize{ChartType: d.chartType("chartType"), IndicatorsVisible: d.boolean("indicatorsVisible")}
	case TypeSetData:
		cmd = SetData{Candles: d.candles("candles"), Timeframe: d.str("timeframe")}
	case TypeAddTick:
		cmd = AddTick{
			Time:   d.integer("time"),
			Open:   d.number("open"),
			High:   d.number("high"),
			Low:    d.number("low"),
			Close:  d.number("close"),
			Volume: d.volume("volume"),
		}
	case TypeChangeChartType:
		cmd = ChangeChartType{Type: d.chartType("chartType")}
	case TypeToggleIndicators:
		cmd = ToggleIndicators{Show: d.boolean("show")}
	case TypeZoomIn:
		cmd = ZoomIn{}
	case TypeZoomOut:
		cmd = ZoomOut{}
	case TypePan:
		cmd = Pan{Offset: d.integer("offset")}
	case TypeAutoScale:
		cmd = AutoScale{}
	case TypeHighlightPrice:
		cmd = HighlightPrice{Price: d.number("price")}
	case TypeSelectMarketPrice:
		cmd = SelectMarketPrice{}
	case TypeClear:
		cmd = Clear{}
	default:
		return nil, &ProtocolError{Command: tag, Reason: "unknown command"}
	}
	if d.err != nil {
		return nil, d.err
	}
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// decoder keeps the first field error and turns later lookups into no-ops.
type decoder struct {
	cmd string
	rec Record
	err *ProtocolError
}

func (d *decoder) fail(field, reason string) {
	if d.err == nil {
		d.err = fieldErr(d.cmd, field, reason)
	}
}

func (d *decoder) required(field string) (any, bool) {
	v, ok := d.rec[field]
	if !ok || v == nil {
		d.fail(field, "required")
		return nil, false
	}
	return v, true
}

func (d *decoder) number(field string) float64 {
	v, ok := d.required(field)
	if !ok {
		return 0
	}
	f, ok := toFloat(v)
	if !ok {
		d.fail(field, "not a number")
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		d.fail(field, "not a finite number")
		return 0
	}
	return f
}

func (d *decoder) integer(field string) int64 {
	f := d.number(field)
	if d.err != nil {
		return 0
	}
	if f != math.Trunc(f) || math.Abs(f) > maxExactInt {
		d.fail(field, "not an integer")
		return 0
	}
	return int64(f)
}

func (d *decoder) volume(field string) *float64 {
	if v, ok := d.rec[field]; !ok || v == nil {
		return nil
	}
	f := d.number(field)
	if d.err != nil {
		return nil
	}
	if f < 0 {
		d.fail(field, "negative volume")
		return nil
	}
	return &f
}

func (d *decoder) boolean(field string) bool {
	v, ok := d.required(field)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.fail(field, "not a boolean")
	}
	return b
}

func (d *decoder) str(field string) string {
	v, ok := d.required(field)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(field, "not a string")
	}
	return s
}

func (d *decoder) chartType(field string) ChartType {
	s := d.str(field)
	if d.err != nil {
		return ""
	}
	ct, ok := ParseChartType(s)
	if !ok {
		d.fail(field, "unknown chart type "+s)
	}
	return ct
}

func (d *decoder) candles(field string) []CandleInput {
	v, ok := d.required(field)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		d.fail(field, "not an array")
		return nil
	}
	out := make([]CandleInput, 0, len(items))
	for i, item := range items {
		m, ok := asRecord(item)
		if !ok {
			d.fail(field, "entry "+strconv.Itoa(i)+" is not an object")
			return nil
		}
		sub := decoder{cmd: d.cmd + ".candles[" + strconv.Itoa(i) + "]", rec: m}
		c := CandleInput{
			Time:   sub.integer("time"),
			Open:   sub.number("open"),
			High:   sub.number("high"),
			Low:    sub.number("low"),
			Close:  sub.number("close"),
			Volume: sub.volume("volume"),
		}
		if sub.err != nil {
			d.err = sub.err
			return nil
		}
		out = append(out, c)
	}
	return out
}

func asRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// EncodeCommand is the inverse of Decode. Hosts use it to build records.
func EncodeCommand(c Command) Record {
	rec := Record{"type": c.Kind()}
	switch c := c.(type) {
	case Initialize:
		rec["chartType"] = string(c.ChartType)
		rec["indicatorsVisible"] = c.IndicatorsVisible
	case SetData:
		candles := make([]any, len(c.Candles))
		for i, in := range c.Candles {
			m := map[string]any{
				"time":  float64(in.Time),
				"open":  in.Open,
				"high":  in.High,
				"low":   in.Low,
				"close": in.Close,
			}
			if in.Volume != nil {
				m["volume"] = *in.Volume
			}
			candles[i] = m
		}
		rec["candles"] = candles
		rec["timeframe"] = c.Timeframe
	case AddTick:
		rec["time"] = float64(c.Time)
		rec["open"] = c.Open
		rec["high"] = c.High
		rec["low"] = c.Low
		rec["close"] = c.Close
		if c.Volume != nil {
			rec["volume"] = *c.Volume
		}
	case ChangeChartType:
		rec["chartType"] = string(c.Type)
	case ToggleIndicators:
		rec["show"] = c.Show
	case Pan:
		rec["offset"] = float64(c.Offset)
	case HighlightPrice:
		rec["price"] = c.Price
	}
	return rec
}

// EncodeEvent flattens an event into a record.
func EncodeEvent(e Event) Record {
	rec := Record{"type": e.Kind()}
	switch e := e.(type) {
	case Error:
		rec["message"] = e.Message
	case PriceSelected:
		rec["price"] = e.Price
		if e.Time != nil {
			rec["time"] = float64(*e.Time)
		}
	case ChartInteraction:
		rec["action"] = e.Action
		rec["x"] = e.X
		rec["y"] = e.Y
	}
	return rec
}

// DecodeEvent is used on the host side of a transport.
func DecodeEvent(rec Record) (Event, error) {
	tag, _ := rec["type"].(string)
	d := decoder{cmd: tag, rec: rec}
	var ev Event
	switch tag {
	case EventReady:
		ev = Ready{}
	case EventError:
		ev = Error{Message: d.str("message")}
	case EventPriceSelected:
		ps := PriceSelected{Price: d.number("price")}
		if _, ok := rec["time"]; ok {
			t := d.integer("time")
			ps.Time = &t
		}
		ev = ps
	case EventChartInteraction:
		ev = ChartInteraction{Action: d.str("action"), X: d.number("x"), Y: d.number("y")}
	default:
		return nil, &ProtocolError{Command: tag, Reason: "unknown event"}
	}
	if d.err != nil {
		return nil, d.err
	}
	return ev, nil
}
