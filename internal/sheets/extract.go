// Package sheets turns spreadsheet-like input into rows of string cells.
//
// Extraction runs three independent strategies over the same worksheet and
// picks one with Select:
//
//	A  structured rows, the header row first
//	B  delimited text parsed as CSV
//	C  key/value records projected onto the first record's keys
package sheets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"cambria.dev/dashboard/internal/obs"
)

var (
	ErrInvalidInput     = errors.New("sheets: invalid input")
	ErrExtractionFailed = errors.New("sheets: extraction failed")
)

// Worksheet is a single tab of a spreadsheet. Any method may fail independently.
type Worksheet interface {
	Rows() ([][]any, error)
	Text() (string, error)
	Records() ([]Record, error)
}

// Field is one key/value pair of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is an ordered key/value object.
type Record []Field

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Strategy names an extraction strategy.
type Strategy string

const (
	StrategyRows    Strategy = "rows"
	StrategyText    Strategy = "text"
	StrategyRecords Strategy = "records"
)

// StrategyResult is the outcome of one strategy. Rows is nil exactly when Err is set.
//
// Signal is the figure Select weighs: the row count for rows, the raw text
// length for text and the key count of the first record for records.
// Records counts the source records; for records Rows also holds the
// generated header, so Rows is one longer.
type StrategyResult struct {
	Strategy  Strategy
	Rows      [][]string
	Signal    int
	Records   int
	Delimited bool
	Err       error
}

func (r StrategyResult) ok() bool { return r.Err == nil && r.Rows != nil }

// Select picks between the three strategy results. Rows wins unless text is
// much longer than the row count and looks delimited, or there are strictly
// more records than structured rows.
func Select(a, b, c StrategyResult) StrategyResult {
	chosen := a
	if b.ok() && b.Delimited && b.Signal > 8*len(a.Rows) {
		chosen = b
	}
	if c.ok() && c.Signal > 0 && c.Records > len(a.Rows) {
		chosen = c
	}
	return chosen
}

// Extract reads ws with every strategy and returns the selected rows without
// blank or null-only rows. The result is never nil.
func Extract(ws Worksheet, tabName string) ([][]string, error) {
	if ws == nil {
		return [][]string{}, fmt.Errorf("%w: worksheet is required", ErrInvalidInput)
	}
	if strings.TrimSpace(tabName) == "" {
		return [][]string{}, fmt.Errorf("%w: tab name is required", ErrInvalidInput)
	}

	a := run(StrategyRows, func() (StrategyResult, error) { return fromRows(ws) })
	b := run(StrategyText, func() (StrategyResult, error) { return fromText(ws) })
	c := run(StrategyRecords, func() (StrategyResult, error) { return fromRecords(ws) })

	log := obs.Logger().With(zap.String("tab", tabName))
	for _, r := range []StrategyResult{a, b, c} {
		if r.Err != nil {
			log.Debug("sheet strategy failed", zap.String("strategy", string(r.Strategy)), zap.Error(r.Err))
		}
	}
	if a.Err != nil && b.Err != nil && c.Err != nil {
		return [][]string{}, fmt.Errorf("%w: no strategy could read tab %q", ErrExtractionFailed, tabName)
	}

	chosen := Select(a, b, c)
	if !chosen.ok() {
		return [][]string{}, fmt.Errorf("%w: selected strategy %s produced no rows", ErrExtractionFailed, chosen.Strategy)
	}
	obs.ObserveSheetExtraction(string(chosen.Strategy))
	log.Debug("sheet extracted",
		zap.String("strategy", string(chosen.Strategy)),
		zap.Int("rows", len(chosen.Rows)),
	)
	return dropBlankRows(chosen.Rows), nil
}

// run isolates a strategy so a panic or error in it cannot affect the others.
func run(s Strategy, fn func() (StrategyResult, error)) (res StrategyResult) {
	defer func() {
		if p := recover(); p != nil {
			res = StrategyResult{Strategy: s, Err: fmt.Errorf("strategy %s panicked: %v", s, p)}
		}
	}()
	res, err := fn()
	if err == nil && res.Rows == nil {
		err = errors.New("no rows")
	}
	if err != nil {
		return StrategyResult{Strategy: s, Err: err}
	}
	res.Strategy = s
	return res
}

func fromRows(ws Worksheet) (StrategyResult, error) {
	raw, err := ws.Rows()
	if err != nil {
		return StrategyResult{}, err
	}
	rows := make([][]string, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, stringifyRow(r))
	}
	return StrategyResult{Rows: rows, Signal: len(rows)}, nil
}

func fromText(ws Worksheet) (StrategyResult, error) {
	text, err := ws.Text()
	if err != nil {
		return StrategyResult{}, err
	}
	rows, err := parseDelimited(text)
	if err != nil {
		return StrategyResult{}, err
	}
	return StrategyResult{
		Rows:      rows,
		Signal:    len(text),
		Delimited: strings.Contains(text, ",") && strings.Contains(text, "\n"),
	}, nil
}

func fromRecords(ws Worksheet) (StrategyResult, error) {
	records, err := ws.Records()
	if err != nil {
		return StrategyResult{}, err
	}
	if len(records) == 0 {
		return StrategyResult{Rows: [][]string{}}, nil
	}
	header := distinctKeys(records[0])
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, header)
	for _, rec := range records {
		row := make([]string, len(header))
		for i, k := range header {
			if v, ok := rec.Get(k); ok {
				row[i] = Stringify(v)
			}
		}
		rows = append(rows, row)
	}
	return StrategyResult{Rows: rows, Signal: len(header), Records: len(records)}, nil
}

func distinctKeys(r Record) []string {
	seen := make(map[string]struct{}, len(r))
	keys := make([]string, 0, len(r))
	for _, f := range r {
		if _, dup := seen[f.Key]; dup {
			continue
		}
		seen[f.Key] = struct{}{}
		keys = append(keys, f.Key)
	}
	return keys
}

func parseDelimited(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows := [][]string{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse delimited text: %w", err)
		}
		rows = append(rows, rec)
	}
}

func stringifyRow(cells []any) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = Stringify(c)
	}
	return out
}

func dropBlankRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if !blankRow(row) {
			out = append(out, row)
		}
	}
	return out
}

func blankRow(row []string) bool {
	for _, cell := range row {
		switch strings.TrimSpace(cell) {
		case "", "undefined", "null":
		default:
			return false
		}
	}
	return true
}
