package models

import "time"

// ProductRecord is one row of the grocery dataset.
// Price is kept as stored ("$1,234.50", USD per lb).
type ProductRecord struct {
	Title  string `json:"title"`
	Price  string `json:"price"`
	Weight string `json:"weight"`
	Unit   string `json:"unit"`
}

type RatesResponse struct {
	Base      string             `json:"base"`
	Timestamp int64              `json:"timestamp"`
	Rates     map[string]float64 `json:"rates"`
	Provider  string             `json:"provider"`
}

type RatesCacheEntry struct {
	Data      RatesResponse
	ExpiresAt time.Time
}

// ExchangeRateResponse is the USD to CAD multiplier served to the front end
type ExchangeRateResponse struct {
	Rate float64 `json:"rate"`
}

type ImageResponse struct {
	ImageURL string `json:"imageUrl"`
}

type SuggestionsResponse struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

type ConvertResponse struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Converted float64 `json:"converted"`
	Rate      float64 `json:"rate"`
}

type DealStyling struct {
	BackgroundColor string `json:"backgroundColor"`
	Color           string `json:"color"`
}

type DealResponse struct {
	Item         string      `json:"item"`
	Status       string      `json:"status"`
	Price        float64     `json:"price"`
	Unit         string      `json:"unit"`
	Average      *float64    `json:"average,omitempty"`
	AverageText  string      `json:"averageText"`
	DealText     string      `json:"dealText"`
	Styling      DealStyling `json:"styling"`
	MatchedCount int         `json:"matchedCount"`
}

// HealthCheck represents the health check response
type HealthCheck struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
