package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"hivisloyalty/internal/service"
)

var csvColumns = map[string][]string{
	"id":      {"id", "transaction_id", "external_id"},
	"date":    {"date", "timestamp", "created_at"},
	"amount":  {"amount"},
	"card":    {"card_number", "card", "cardnumber"},
	"product": {"product", "product_name", "item"},
	"machine": {"machine_id", "machine", "device_id"},
}

// ParseCSV reads a vending export with a header row. Amounts are dollars.
// Rows without an id column get CSV_<batch>_<line>. A bad row is reported and
// skipped; only an unreadable header fails the whole file.
func ParseCSV(r io.Reader, batchID string) ([]*service.RawTransaction, []error, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("csv: empty file")
		}
		return nil, nil, fmt.Errorf("csv header: %w", err)
	}
	index := headerIndex(header)
	for _, required := range []string{"date", "amount", "product"} {
		if _, ok := index[required]; !ok {
			return nil, nil, fmt.Errorf("csv: missing %s column", required)
		}
	}

	var (
		out  []*service.RawTransaction
		errs []error
		line = 1
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if blank(record) {
			continue
		}
		tx, err := csvRow(record, index, batchID, line)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		out = append(out, tx)
	}
	return out, errs, nil
}

func csvRow(record []string, index map[string]int, batchID string, line int) (*service.RawTransaction, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	dollars, err := strconv.ParseFloat(strings.TrimPrefix(get("amount"), "$"), 64)
	if err != nil {
		return nil, fmt.Errorf("amount %q is not numeric", get("amount"))
	}
	amount := int64(math.Round(dollars * 100))

	ts, err := ParseTimestamp(get("date"))
	if err != nil {
		return nil, err
	}

	id := get("id")
	if id == "" {
		id = fmt.Sprintf("CSV_%s_%d", batchID, line)
	}
	machine := get("machine")
	if machine == "" {
		machine = "CSV_IMPORT"
	}
	return &service.RawTransaction{
		ExternalID:  id,
		MachineID:   machine,
		CardNumber:  get("card"),
		Amount:      &amount,
		ProductName: get("product"),
		Timestamp:   ts,
	}, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for col, aliases := range csvColumns {
			for _, alias := range aliases {
				if name == alias {
					if _, seen := index[col]; !seen {
						index[col] = i
					}
				}
			}
		}
	}
	return index
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
