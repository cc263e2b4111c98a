// Package cost prices oracle usage and computes the savings attributable to
// template hits. Template extraction is free by definition; every template
// hit saves one unit oracle call.
package cost

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds oracle pricing configuration.
type Rates struct {
	// Models maps model id to token pricing for usage-based billing.
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
	// UnitCall is the flat per-call cost assumed for savings accounting
	// and for oracles that report no token usage.
	UnitCall float64 `yaml:"unit_call" mapstructure:"unit_call"`
}

// Calculator computes costs for oracle usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// OracleCall prices one oracle call from its token usage. Falls back to the
// flat unit cost when the model is unknown or no usage was reported.
func (c *Calculator) OracleCall(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := c.rates.Models[model]
	if !ok || (inputTokens == 0 && outputTokens == 0) {
		return c.rates.UnitCall
	}
	inCost := (float64(inputTokens) / 1e6) * rate.Input
	outCost := (float64(outputTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// UnitCall returns the flat per-call oracle cost.
func (c *Calculator) UnitCall() float64 {
	return c.rates.UnitCall
}

// Saved returns the cost avoided by the given number of template hits.
func (c *Calculator) Saved(templateHits int) float64 {
	return float64(templateHits) * c.rates.UnitCall
}

// DefaultRates returns the default oracle pricing.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		UnitCall: 0.02,
	}
}
