package opportunity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput is returned when a payload is not a JSON array at all.
var ErrInvalidInput = errors.New("opportunity: invalid input")

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses the upstream ISO-8601 variants at millisecond precision.
// Values without a zone are read as UTC.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), " UTC"))
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", v)
}

type wireDetails struct {
	GasCostUSD       *float64 `json:"gas_cost_usd"`
	SlippageRightPct *float64 `json:"est_uni_slippage_pct"`
	SlippageLeftPct  *float64 `json:"est_bin_slippage_pct"`
}

type wireRecord struct {
	Timestamp     *string      `json:"timestamp"`
	BlockNumber   *int64       `json:"block_number,omitempty"`
	Direction     *string      `json:"direction"`
	PriceLeft     *float64     `json:"price_bin"`
	PriceRight    *float64     `json:"price_uni"`
	SpreadPct     *float64     `json:"spread_pct"`
	Volatility    *float64     `json:"volatility,omitempty"`
	OptimalAmount *float64     `json:"optimal_amount_eth"`
	CostGas       *float64     `json:"cost_gas,omitempty"`
	NetProfit     *float64     `json:"net_profit_usd"`
	RoiPct        *float64     `json:"roi_pct"`
	RiskScore     *float64     `json:"risk_score,omitempty"`
	Details       *wireDetails `json:"details"`
}

type wireSample struct {
	Timestamp  *string  `json:"timestamp"`
	PriceLeft  *float64 `json:"bin_vwap"`
	PriceRight *float64 `json:"uni_price"`
	SpreadPct  *float64 `json:"spread_pct"`
}

// DecodeRecords decodes an upstream opportunity array. Elements that fail to
// decode or miss a required field are skipped and counted.
func DecodeRecords(payload []byte) ([]Record, int, error) {
	elems, err := splitArray(payload)
	if err != nil {
		return nil, 0, err
	}

	records := make([]Record, 0, len(elems))
	excluded := 0
	for _, raw := range elems {
		var w wireRecord
		if err := json.Unmarshal(raw, &w); err != nil {
			excluded++
			continue
		}
		rec, ok := w.record()
		if !ok || !rec.Valid() {
			excluded++
			continue
		}
		records = append(records, rec)
	}
	return records, excluded, nil
}

// DecodeSamples decodes an upstream chart array, keeping the received order.
func DecodeSamples(payload []byte) ([]PriceSample, int, error) {
	elems, err := splitArray(payload)
	if err != nil {
		return nil, 0, err
	}

	samples := make([]PriceSample, 0, len(elems))
	excluded := 0
	for _, raw := range elems {
		var w wireSample
		if err := json.Unmarshal(raw, &w); err != nil || w.Timestamp == nil || w.PriceLeft == nil || w.PriceRight == nil {
			excluded++
			continue
		}
		ts, err := ParseTimestamp(*w.Timestamp)
		if err != nil {
			excluded++
			continue
		}
		s := PriceSample{Timestamp: ts, PriceLeft: *w.PriceLeft, PriceRight: *w.PriceRight}
		if w.SpreadPct != nil {
			s.SpreadPct = *w.SpreadPct
		}
		if !s.Valid() {
			excluded++
			continue
		}
		samples = append(samples, s)
	}
	return samples, excluded, nil
}

// DecodeSummary decodes the upstream summary object.
func DecodeSummary(payload []byte) (Summary, error) {
	var s Summary
	if err := json.Unmarshal(payload, &s); err != nil {
		return Summary{}, fmt.Errorf("%w: summary: %v", ErrInvalidInput, err)
	}
	return s, nil
}

// EncodeRecords renders records in the upstream wire schema.
func EncodeRecords(records []Record) ([]byte, error) {
	out := make([]wireRecord, 0, len(records))
	for _, r := range records {
		out = append(out, fromRecord(r))
	}
	return json.Marshal(out)
}

// EncodeSamples renders samples in the upstream wire schema.
func EncodeSamples(samples []PriceSample) ([]byte, error) {
	out := make([]wireSample, 0, len(samples))
	for _, s := range samples {
		ts := s.Timestamp.UTC().Format(time.RFC3339Nano)
		out = append(out, wireSample{Timestamp: &ts, PriceLeft: &s.PriceLeft, PriceRight: &s.PriceRight, SpreadPct: &s.SpreadPct})
	}
	return json.Marshal(out)
}

func splitArray(payload []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrInvalidInput)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return elems, nil
}

func (w wireRecord) record() (Record, bool) {
	if w.Timestamp == nil || w.Direction == nil || w.PriceLeft == nil || w.PriceRight == nil ||
		w.SpreadPct == nil || w.OptimalAmount == nil || w.NetProfit == nil || w.RoiPct == nil {
		return Record{}, false
	}
	ts, err := ParseTimestamp(*w.Timestamp)
	if err != nil {
		return Record{}, false
	}
	dir, err := ParseDirection(*w.Direction)
	if err != nil || !dir.Known() {
		return Record{}, false
	}

	rec := Record{
		Timestamp:     ts,
		BlockNumber:   w.BlockNumber,
		Direction:     dir,
		PriceLeft:     *w.PriceLeft,
		PriceRight:    *w.PriceRight,
		SpreadPct:     *w.SpreadPct,
		Volatility:    w.Volatility,
		OptimalAmount: *w.OptimalAmount,
		NetProfit:     *w.NetProfit,
		RoiPct:        *w.RoiPct,
		RiskScore:     deref(w.RiskScore),
	}
	if w.Details != nil {
		rec.Details = Details{
			GasCostUSD:       deref(w.Details.GasCostUSD),
			SlippageLeftPct:  deref(w.Details.SlippageLeftPct),
			SlippageRightPct: deref(w.Details.SlippageRightPct),
		}
	}

	// the two upstream endpoints report gas under different keys
	switch {
	case w.CostGas != nil:
		rec.CostGas = *w.CostGas
		if w.Details == nil || w.Details.GasCostUSD == nil {
			rec.Details.GasCostUSD = rec.CostGas
		}
	default:
		rec.CostGas = rec.Details.GasCostUSD
	}
	return rec, true
}

func fromRecord(r Record) wireRecord {
	ts := r.Timestamp.UTC().Format(time.RFC3339Nano)
	dir := string(r.Direction)
	return wireRecord{
		Timestamp:     &ts,
		BlockNumber:   r.BlockNumber,
		Direction:     &dir,
		PriceLeft:     &r.PriceLeft,
		PriceRight:    &r.PriceRight,
		SpreadPct:     &r.SpreadPct,
		Volatility:    r.Volatility,
		OptimalAmount: &r.OptimalAmount,
		CostGas:       &r.CostGas,
		NetProfit:     &r.NetProfit,
		RoiPct:        &r.RoiPct,
		RiskScore:     &r.RiskScore,
		Details: &wireDetails{
			GasCostUSD:       &r.Details.GasCostUSD,
			SlippageLeftPct:  &r.Details.SlippageLeftPct,
			SlippageRightPct: &r.Details.SlippageRightPct,
		},
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
