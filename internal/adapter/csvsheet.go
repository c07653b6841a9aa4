package adapter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/drstein77/priceallocator/internal/models"
	"github.com/shopspring/decimal"
)

type columns struct {
	name, sku, quantity, price int
}

// positional layout used when the first row is not a header:
// name, sku, quantity, price
var defaultColumns = columns{name: 0, sku: 1, quantity: 2, price: 3}

var headerAliases = map[string]string{
	"name":        "name",
	"item":        "name",
	"description": "name",
	"sku":         "sku",
	"quantity":    "quantity",
	"qty":         "quantity",
	"price":       "price",
	"unit_price":  "price",
	"unit price":  "price",
}

// CSVSheet is a Page backed by CSV rows held in memory.
type CSVSheet struct {
	// Currency is appended to amounts in Report.
	Currency string

	mx      sync.Mutex
	header  []string
	rows    [][]string
	cols    columns
	outcome *Summary
}

// ReadCSV loads a sheet. A first row naming a price column is treated as
// a header; otherwise rows are read positionally.
func ReadCSV(r io.Reader) (*CSVSheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	sheet := &CSVSheet{cols: defaultColumns}
	if len(records) > 0 {
		if cols, ok := detectHeader(records[0]); ok {
			sheet.header = records[0]
			sheet.cols = cols
			records = records[1:]
		}
	}

	for _, rec := range records {
		if isBlank(rec) {
			continue
		}
		sheet.rows = append(sheet.rows, rec)
	}

	return sheet, nil
}

func detectHeader(record []string) (columns, bool) {
	cols := columns{name: -1, sku: -1, quantity: -1, price: -1}
	for i, cell := range record {
		switch headerAliases[strings.ToLower(strings.TrimSpace(cell))] {
		case "name":
			cols.name = i
		case "sku":
			cols.sku = i
		case "quantity":
			cols.quantity = i
		case "price":
			cols.price = i
		}
	}
	return cols, cols.price >= 0
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cell(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ReadLineItems parses rows into line items. An empty price reads as 0 and
// an empty quantity as 1.
func (s *CSVSheet) ReadLineItems(_ context.Context) ([]models.LineItem, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	items := make([]models.LineItem, 0, len(s.rows))
	for i, rec := range s.rows {
		item := models.LineItem{
			Name:      cell(rec, s.cols.name),
			SKU:       cell(rec, s.cols.sku),
			Quantity:  1,
			UnitPrice: decimal.Zero,
		}

		if raw := cell(rec, s.cols.quantity); raw != "" {
			qty, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid quantity %q: %w", i+1, raw, err)
			}
			item.Quantity = qty
		}

		if raw := strings.ReplaceAll(cell(rec, s.cols.price), ",", "."); raw != "" {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid price %q: %w", i+1, raw, err)
			}
			item.UnitPrice = price
		}

		items = append(items, item)
	}

	return items, nil
}

func (s *CSVSheet) WriteUnitPrice(_ context.Context, index int, price decimal.Decimal) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if index < 0 || index >= len(s.rows) {
		return fmt.Errorf("row %d out of range", index+1)
	}
	rec := s.rows[index]
	for len(rec) <= s.cols.price {
		rec = append(rec, "")
	}
	rec[s.cols.price] = price.StringFixed(2)
	s.rows[index] = rec

	return nil
}

func (s *CSVSheet) ReportOutcome(_ context.Context, summary Summary) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.outcome = &summary
	return nil
}

// Report returns the text report of the last run, or "" before any run.
func (s *CSVSheet) Report() string {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.outcome == nil {
		return ""
	}
	summary := *s.outcome
	if summary.Currency == "" {
		summary.Currency = s.Currency
	}
	return FormatReport(summary)
}

// Encode writes the sheet, header included, as CSV.
func (s *CSVSheet) Encode(w io.Writer) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	cw := csv.NewWriter(w)
	if s.header != nil {
		if err := cw.Write(s.header); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(s.rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
