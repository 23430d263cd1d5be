package utils

import (
	"unicode"

	"github.com/pidginhq/pidgin/internal/pidginlog"
	"github.com/pidginhq/pidgin/internal/providers"
)

// EstimateCost calculates estimated cost based on model and token count.
// It uses the provider registry to look up pricing. Falls back to zero
// cost if the model is not found in the registry.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	registry := providers.GetRegistry()

	modelInfo, provider, err := registry.GetModel(model)
	if err != nil {
		pidginlog.WithFields(map[string]interface{}{
			"model":         model,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		}).Warn("model not found in provider registry, cost estimate will be $0.00")
		return 0.0
	}

	inputCost := (float64(inputTokens) / 1_000_000) * modelInfo.CostPer1MIn
	outputCost := (float64(outputTokens) / 1_000_000) * modelInfo.CostPer1MOut
	totalCost := inputCost + outputCost

	pidginlog.WithFields(map[string]interface{}{
		"model":         model,
		"provider":      provider.Name,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"input_cost":    inputCost,
		"output_cost":   outputCost,
		"total_cost":    totalCost,
	}).Debug("calculated cost estimate")

	return totalCost
}

// CountWords returns the number of words in a string.
func CountWords(text string) int {
	count := 0
	inWord := false

	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}

	return count
}
