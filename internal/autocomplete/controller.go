// Package autocomplete holds the page state of the price checker: the item
// field with its suggestion list and image panel, the two mutually exclusive
// price fields, and the deal read-out.
package autocomplete

import (
	"context"
	"errors"
	"sync"
	"time"

	"grocery-price-api/internal/dataset"
	"grocery-price-api/internal/deal"
	"grocery-price-api/internal/debounce"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/models"
	"grocery-price-api/internal/units"
)

type ImageSource interface {
	ImageURL(ctx context.Context, term string) (string, error)
}

// State is what the page shows. Source names the price field the user typed
// into; the other field only ever holds the converted value.
type State struct {
	Item     string
	USDPerLb string
	CADPerKg string
	Source   units.Unit

	AverageText string
	DealText    string
	DealStyling deal.Styling

	Suggestions     []string
	SuggestionsOpen bool

	ImageURL     string
	ImageVisible bool
}

type Options struct {
	Dataset deal.DatasetSource
	Rates   deal.RateSource
	Images  ImageSource
	Logger  *logger.Logger

	// ImageDebounce is the quiet period before an image lookup; 1s when zero
	ImageDebounce time.Duration

	// BaseContext bounds the debounced image lookups
	BaseContext context.Context

	// OnChange receives a snapshot after every state change
	OnChange func(State)
}

type Controller struct {
	datasetSource deal.DatasetSource
	rates         deal.RateSource
	images        ImageSource
	logger        *logger.Logger
	debouncer     *debounce.Debouncer
	baseContext   context.Context
	onChange      func(State)

	mu    sync.Mutex
	state State
	index dataset.Index

	// imageGeneration changes on every scheduled lookup and on Clear; a
	// lookup whose generation is stale is discarded
	imageGeneration uint64
}

func NewController(options Options) *Controller {
	delay := options.ImageDebounce
	if delay <= 0 {
		delay = time.Second
	}
	baseContext := options.BaseContext
	if baseContext == nil {
		baseContext = context.Background()
	}
	log := options.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Controller{
		datasetSource: options.Dataset,
		rates:         options.Rates,
		images:        options.Images,
		logger:        log,
		debouncer:     debounce.New(delay),
		baseContext:   baseContext,
		onChange:      options.OnChange,
		index:         dataset.Index{},
	}
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Refresh fetches the dataset and rebuilds the valid item index
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.fetchDatasetLocked(ctx)
	return err
}

// TypeItem handles a keystroke in the item field
func (c *Controller) TypeItem(ctx context.Context, text string) {
	c.mu.Lock()
	c.state.Item = text

	records, err := c.fetchDatasetLocked(ctx)
	if err == nil {
		c.updateDealLocked(ctx, records)
		c.updateSuggestionsLocked(records)
	} else {
		c.closeSuggestionsLocked()
	}
	c.scheduleImageLocked()
	c.mu.Unlock()

	c.notify()
}

// SelectSuggestion puts the chosen suggestion in the item field and closes the list
func (c *Controller) SelectSuggestion(ctx context.Context, suggestion string) {
	c.mu.Lock()
	c.state.Item = suggestion
	c.closeSuggestionsLocked()

	if records, err := c.fetchDatasetLocked(ctx); err == nil {
		c.updateDealLocked(ctx, records)
	}
	c.scheduleImageLocked()
	c.mu.Unlock()

	c.notify()
}

// ClickOutside hides the suggestion list and leaves the item untouched
func (c *Controller) ClickOutside() {
	c.mu.Lock()
	c.state.SuggestionsOpen = false
	c.mu.Unlock()

	c.notify()
}

// SetUSDPerLb handles input in the USD per lb field
func (c *Controller) SetUSDPerLb(ctx context.Context, raw string) {
	c.setPrice(ctx, units.USDPerLb, raw)
}

// SetCADPerKg handles input in the CAD per kg field
func (c *Controller) SetCADPerKg(ctx context.Context, raw string) {
	c.setPrice(ctx, units.CADPerKg, raw)
}

// Clear resets every field and hides the image panel
func (c *Controller) Clear() {
	c.debouncer.Cancel()

	c.mu.Lock()
	c.state = State{}
	c.imageGeneration++
	c.mu.Unlock()

	c.notify()
}

// Close cancels any pending image lookup
func (c *Controller) Close() {
	c.debouncer.Stop()
}

func (c *Controller) setPrice(ctx context.Context, unit units.Unit, raw string) {
	value, ok := units.ParseAmount(raw)
	if ok && value < 0 {
		value = 0
		raw = "0"
	}

	c.mu.Lock()
	c.setFieldLocked(unit, raw)
	c.setFieldLocked(unit.Other(), "")
	c.state.Source = unit

	if ok && c.index.Contains(c.state.Item) {
		rate := c.rates.ExchangeRate(ctx)
		if converted, err := units.Convert(value, unit, rate); err == nil {
			c.setFieldLocked(unit.Other(), units.FormatAmount(converted))
		} else {
			c.logger.Warnf("Conversion failed: %v", err)
		}
	}

	if records, err := c.fetchDatasetLocked(ctx); err == nil {
		c.updateDealLocked(ctx, records)
	}
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) setFieldLocked(unit units.Unit, value string) {
	if unit == units.CADPerKg {
		c.state.CADPerKg = value
	} else {
		c.state.USDPerLb = value
	}
}

func (c *Controller) fieldLocked(unit units.Unit) string {
	if unit == units.CADPerKg {
		return c.state.CADPerKg
	}
	return c.state.USDPerLb
}

// fetchDatasetLocked re-fetches the dataset; the index is replaced wholesale on success
func (c *Controller) fetchDatasetLocked(ctx context.Context) ([]models.ProductRecord, error) {
	records, err := c.datasetSource.FetchDataset(ctx)
	if err != nil {
		c.logger.Errorf("Error fetching dataset: %v", err)
		return nil, err
	}
	c.index = dataset.NewIndex(records)
	return records, nil
}

// updateDealLocked re-evaluates the user-entered price; unknown items and
// failures leave the read-out as it was
func (c *Controller) updateDealLocked(ctx context.Context, records []models.ProductRecord) {
	if c.state.Source == "" {
		return
	}
	price, ok := units.ParseAmount(c.fieldLocked(c.state.Source))
	if !ok || price < 0 {
		return
	}

	rate := 0.0
	if c.state.Source == units.CADPerKg {
		rate = c.rates.ExchangeRate(ctx)
	}

	result, err := deal.EvaluateRecords(records, c.index, c.state.Item, price, c.state.Source, rate, c.logger)
	if err != nil {
		if !errors.Is(err, deal.ErrUnknownItem) {
			c.logger.Warnf("Deal evaluation failed: %v", err)
		}
		return
	}

	c.state.AverageText = result.AverageText
	c.state.DealText = result.DealText
	c.state.DealStyling = result.Styling
}

func (c *Controller) updateSuggestionsLocked(records []models.ProductRecord) {
	suggestions := Suggest(records, c.state.Item)
	if len(suggestions) == 0 {
		c.closeSuggestionsLocked()
		return
	}
	c.state.Suggestions = suggestions
	c.state.SuggestionsOpen = true
}

func (c *Controller) closeSuggestionsLocked() {
	c.state.Suggestions = nil
	c.state.SuggestionsOpen = false
}

func (c *Controller) scheduleImageLocked() {
	c.imageGeneration++
	c.debouncer.Trigger(c.refreshImage)
}

// refreshImage runs on the debounce timer and looks up the item as it is now
func (c *Controller) refreshImage() {
	c.mu.Lock()
	item := c.state.Item
	generation := c.imageGeneration
	c.mu.Unlock()

	imageURL := ""
	if item != "" {
		var err error
		imageURL, err = c.images.ImageURL(c.baseContext, item)
		if err != nil {
			c.logger.Errorf("Error fetching grocery image: %v", err)
			imageURL = ""
		}
	}

	c.mu.Lock()
	if generation != c.imageGeneration || item != c.state.Item {
		c.mu.Unlock()
		c.logger.Debugf("Dropping stale image for %q", item)
		return
	}
	c.state.ImageURL = imageURL
	c.state.ImageVisible = imageURL != ""
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) snapshotLocked() State {
	snapshot := c.state
	if c.state.Suggestions != nil {
		snapshot.Suggestions = append([]string(nil), c.state.Suggestions...)
	}
	return snapshot
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.Snapshot())
}
