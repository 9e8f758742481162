package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"hivisloyalty/internal/service"
)

// ParseMomaPayload maps a Moma webhook or poll response onto the canonical
// purchase shape. The body may hold a single object, {"transaction": {...}},
// {"transactions": [...]} or {"data": [...]}. Rows that cannot be mapped are
// returned as errors and skipped.
func ParseMomaPayload(body []byte) ([]*service.RawTransaction, []error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		var list []map[string]interface{}
		if listErr := decodeNumbers(body, &list); listErr != nil {
			return nil, []error{fmt.Errorf("decode payload: %w", err)}
		}
		return mapRows(list)
	}

	for _, key := range []string{"transactions", "data"} {
		if raw, ok := root[key]; ok {
			var list []map[string]interface{}
			if err := decodeNumbers(raw, &list); err != nil {
				return nil, []error{fmt.Errorf("decode %s: %w", key, err)}
			}
			return mapRows(list)
		}
	}
	if raw, ok := root["transaction"]; ok {
		var one map[string]interface{}
		if err := decodeNumbers(raw, &one); err != nil {
			return nil, []error{fmt.Errorf("decode transaction: %w", err)}
		}
		return mapRows([]map[string]interface{}{one})
	}

	var one map[string]interface{}
	if err := decodeNumbers(body, &one); err != nil {
		return nil, []error{err}
	}
	return mapRows([]map[string]interface{}{one})
}

// decodeNumbers keeps numbers as json.Number so long numeric ids and card
// numbers survive without float rounding.
func decodeNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func mapRows(rows []map[string]interface{}) ([]*service.RawTransaction, []error) {
	out := make([]*service.RawTransaction, 0, len(rows))
	var errs []error
	for i, row := range rows {
		tx, err := MapMomaTransaction(row)
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		out = append(out, tx)
	}
	return out, errs
}

// MapMomaTransaction converts one Moma record. amount_cents wins over amount,
// which is in dollars.
func MapMomaTransaction(row map[string]interface{}) (*service.RawTransaction, error) {
	tx := &service.RawTransaction{
		ExternalID:  firstString(row, "id", "transaction_id"),
		MachineID:   firstString(row, "machine_id", "deviceId"),
		CardNumber:  firstString(row, "card_number", "cardNumber"),
		ProductName: firstString(row, "product_name", "productName", "item"),
	}

	if v, ok := row["amount_cents"]; ok {
		cents, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("amount_cents: %w", err)
		}
		amount := int64(math.Round(cents))
		tx.Amount = &amount
	} else if v, ok := row["amount"]; ok {
		dollars, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
		amount := int64(math.Round(dollars * 100))
		tx.Amount = &amount
	}

	ts := firstValue(row, "timestamp", "created_at")
	if ts != nil {
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("timestamp: %w", err)
		}
		tx.Timestamp = t
	}
	return tx, nil
}

func firstValue(row map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(row map[string]interface{}, keys ...string) string {
	switch v := firstValue(row, keys...).(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

var errNotNumeric = errors.New("not numeric")

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, errNotNumeric
		}
		return f, nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return f, nil
	default:
		return 0, errNotNumeric
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

func parseTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case json.Number:
		sec, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return time.Time{}, fmt.Errorf("unsupported timestamp %v", v)
			}
			sec = int64(f)
		}
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC(), nil
		}
		return time.Unix(sec, 0).UTC(), nil
	case float64:
		sec := int64(t)
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC(), nil
		}
		return time.Unix(sec, 0).UTC(), nil
	case string:
		return ParseTimestamp(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp %v", v)
	}
}

// ParseTimestamp accepts RFC3339 and the common date layouts vending exports
// use. Layouts without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
