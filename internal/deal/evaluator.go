// Package deal classifies an entered grocery price against the dataset average.
package deal

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"grocery-price-api/internal/dataset"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
	"grocery-price-api/internal/units"
)

// ErrUnknownItem means the item is empty or not in the dataset. Callers treat
// it as "do nothing".
var ErrUnknownItem = errors.New("unknown item")

type DatasetSource interface {
	FetchDataset(ctx context.Context) ([]models.ProductRecord, error)
}

// RateSource returns the USD to CAD multiplier. It never fails; a fallback
// value is returned when no fresh rate is available.
type RateSource interface {
	ExchangeRate(ctx context.Context) float64
}

type Status string

const (
	StatusGoodDeal         Status = "good_deal"
	StatusNotGoodDeal      Status = "not_good_deal"
	StatusInsufficientData Status = "insufficient_data"
)

// Styling is the background/text color pair shown with the deal text
type Styling struct {
	BackgroundColor string
	Color           string
}

var (
	GoodDealStyling    = Styling{BackgroundColor: "#d4edda", Color: "#155724"}
	NotGoodDealStyling = Styling{BackgroundColor: "#f8d7da", Color: "#721c24"}
)

const (
	GoodDealText    = "This is a good deal!"
	NotGoodDealText = "This is not a good deal."
)

type Result struct {
	Item   string
	Price  float64
	Unit   units.Unit
	Status Status

	// Average is in Unit; only meaningful when HasAverage is set
	Average      float64
	HasAverage   bool
	MatchedCount int

	AverageText string
	DealText    string
	Styling     Styling
}

func (r Result) IsGoodDeal() bool {
	return r.Status == StatusGoodDeal
}

// Response converts the result to its JSON shape
func (r Result) Response() models.DealResponse {
	response := models.DealResponse{
		Item:         r.Item,
		Status:       string(r.Status),
		Price:        r.Price,
		Unit:         string(r.Unit),
		AverageText:  r.AverageText,
		DealText:     r.DealText,
		Styling:      models.DealStyling{BackgroundColor: r.Styling.BackgroundColor, Color: r.Styling.Color},
		MatchedCount: r.MatchedCount,
	}
	if r.HasAverage {
		average := r.Average
		response.Average = &average
	}
	return response
}

type Evaluator struct {
	dataset DatasetSource
	rates   RateSource
	logger  *logger.Logger
}

func NewEvaluator(dataset DatasetSource, rates RateSource, logger *logger.Logger) *Evaluator {
	return &Evaluator{
		dataset: dataset,
		rates:   rates,
		logger:  logger,
	}
}

// Evaluate fetches the dataset and classifies price for item.
func (evaluator *Evaluator) Evaluate(ctx context.Context, item string, price float64, unit units.Unit) (Result, error) {
	if dataset.NormalizeTitle(item) == "" {
		return Result{}, ErrUnknownItem
	}

	records, err := evaluator.dataset.FetchDataset(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch dataset: %w", err)
	}

	rate := 0.0
	if unit == units.CADPerKg {
		rate = evaluator.rates.ExchangeRate(ctx)
	}

	return EvaluateRecords(records, dataset.NewIndex(records), item, price, unit, rate, evaluator.logger)
}

// EvaluateRecords is Evaluate over an already fetched dataset. rate is only
// used for CAD per kg prices.
func EvaluateRecords(records []models.ProductRecord, index dataset.Index, item string, price float64, unit units.Unit, rate float64, log *logger.Logger) (Result, error) {
	key := dataset.NormalizeTitle(item)
	if key == "" || !index.Contains(key) {
		return Result{}, ErrUnknownItem
	}
	if err := units.Validate(price); err != nil {
		return Result{}, err
	}
	if unit != units.USDPerLb && unit != units.CADPerKg {
		return Result{}, fmt.Errorf("%w: %q", units.ErrUnknownUnit, unit)
	}

	result := Result{Item: key, Price: price, Unit: unit}

	average, matched, ok := AveragePrice(records, key, log)
	result.MatchedCount = matched
	if !ok {
		result.Status = StatusInsufficientData
		result.AverageText = fmt.Sprintf("No comparison available for %s.", key)
		return result, nil
	}

	if unit == units.CADPerKg {
		average = units.UsdPerLbToCadPerKg(average, rate)
	}

	result.Average = average
	result.HasAverage = true
	result.AverageText = fmt.Sprintf("Average price for %s: $%s %s", key, units.FormatAmount(average), unit.Label())

	if price < average {
		result.Status = StatusGoodDeal
		result.DealText = GoodDealText
		result.Styling = GoodDealStyling
	} else {
		result.Status = StatusNotGoodDeal
		result.DealText = NotGoodDealText
		result.Styling = NotGoodDealStyling
	}
	return result, nil
}

// AveragePrice is the mean USD per lb price of the records titled item.
// Unparsable prices are skipped. ok is false when nothing usable matched.
func AveragePrice(records []models.ProductRecord, item string, log *logger.Logger) (average float64, matched int, ok bool) {
	key := dataset.NormalizeTitle(item)
	total := decimal.Zero
	count := 0

	for _, record := range records {
		if dataset.NormalizeTitle(record.Title) != key {
			continue
		}
		matched++

		price, err := dataset.ParsePrice(record.Price)
		if err != nil {
			if log != nil {
				log.WithField("title", record.Title).Warnf("Skipping unparsable price: %v", err)
			}
			continue
		}
		total = total.Add(price)
		count++
	}

	if count == 0 {
		return 0, matched, false
	}
	return total.Div(decimal.NewFromInt(int64(count))).InexactFloat64(), matched, true
}
