package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
)

// minColumns is title, price, weight, unit
const minColumns = 4

var ErrInvalidPrice = errors.New("invalid price")

// Parse reads the grocery CSV. The first line is a header. Quoted fields may
// contain commas. Rows with fewer than four columns are skipped.
func Parse(reader io.Reader, log *logger.Logger) ([]models.ProductRecord, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true

	if _, err := csvReader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []models.ProductRecord{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	records := []models.ProductRecord{}
	for {
		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseError *csv.ParseError
			if errors.As(err, &parseError) {
				log.Warnf("Skipping unparsable dataset line %d: %v", parseError.Line, err)
				continue
			}
			return nil, fmt.Errorf("read dataset: %w", err)
		}

		if len(row) < minColumns {
			line, _ := csvReader.FieldPos(0)
			log.WithField("line", line).Warnf("Skipping dataset row with %d columns", len(row))
			continue
		}

		records = append(records, models.ProductRecord{
			Title:  strings.TrimSpace(strings.ReplaceAll(row[0], `"`, "")),
			Price:  strings.TrimSpace(row[1]),
			Weight: strings.TrimSpace(row[2]),
			Unit:   strings.TrimSpace(row[3]),
		})
	}

	return records, nil
}

// ParsePrice strips currency symbols and thousands separators ("$1,234.50").
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	return price, nil
}

// Index is the set of lower-cased titles gating per-item computation.
type Index map[string]struct{}

// NewIndex builds the index from dataset titles.
func NewIndex(records []models.ProductRecord) Index {
	index := make(Index, len(records))
	for _, record := range records {
		index[NormalizeTitle(record.Title)] = struct{}{}
	}
	return index
}

// Contains reports whether item names a known title, ignoring case.
func (index Index) Contains(item string) bool {
	key := NormalizeTitle(item)
	if key == "" {
		return false
	}
	_, ok := index[key]
	return ok
}

// NormalizeTitle is the case-insensitive key form of a title.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
