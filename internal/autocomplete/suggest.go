package autocomplete

import (
	"strings"

	"grocery-price-api/internal/dataset"
	"grocery-price-api/internal/models"
)

// Suggest returns every title containing input (case-insensitive), in dataset
// order. Duplicated titles are repeated. Empty input yields nil.
func Suggest(records []models.ProductRecord, input string) []string {
	key := dataset.NormalizeTitle(input)
	if key == "" {
		return nil
	}

	var suggestions []string
	for _, record := range records {
		if strings.Contains(strings.ToLower(record.Title), key) {
			suggestions = append(suggestions, record.Title)
		}
	}
	return suggestions
}
