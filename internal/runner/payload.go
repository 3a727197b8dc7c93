package runner

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrInvalidPayload is returned when restrictions cannot produce a valid request body.
var ErrInvalidPayload = errors.New("invalid restriction payload")

// Restrictions is the body of every POST /api/pizza request.
type Restrictions struct {
	MaxCaloriesPerSlice int      `json:"maxCaloriesPerSlice" mapstructure:"maxCaloriesPerSlice"`
	MustBeVegetarian    bool     `json:"mustBeVegetarian" mapstructure:"mustBeVegetarian"`
	ExcludedIngredients []string `json:"excludedIngredients" mapstructure:"excludedIngredients"`
	ExcludedTools       []string `json:"excludedTools" mapstructure:"excludedTools"`
	MaxNumberOfToppings int      `json:"maxNumberOfToppings" mapstructure:"maxNumberOfToppings"`
	MinNumberOfToppings int      `json:"minNumberOfToppings" mapstructure:"minNumberOfToppings"`
}

// DefaultRestrictions returns the payload the QuickPizza benchmark has always sent.
func DefaultRestrictions() Restrictions {
	return Restrictions{
		MaxCaloriesPerSlice: 500,
		MustBeVegetarian:    false,
		ExcludedIngredients: []string{"pepperoni"},
		ExcludedTools:       []string{"knife"},
		MaxNumberOfToppings: 6,
		MinNumberOfToppings: 2,
	}
}

func (r Restrictions) Validate() error {
	if r.MaxCaloriesPerSlice <= 0 {
		return errors.Wrapf(ErrInvalidPayload, "maxCaloriesPerSlice must be positive, got %d", r.MaxCaloriesPerSlice)
	}
	if r.MinNumberOfToppings < 0 {
		return errors.Wrapf(ErrInvalidPayload, "minNumberOfToppings cannot be negative, got %d", r.MinNumberOfToppings)
	}
	if r.MinNumberOfToppings > r.MaxNumberOfToppings {
		return errors.Wrapf(ErrInvalidPayload, "minNumberOfToppings (%d) exceeds maxNumberOfToppings (%d)",
			r.MinNumberOfToppings, r.MaxNumberOfToppings)
	}
	return nil
}

// Marshal validates the restrictions and encodes them. Ingredient and tool
// lists are sets: duplicates are dropped and a nil list encodes as [].
func (r Restrictions) Marshal() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.ExcludedIngredients = uniq(r.ExcludedIngredients)
	r.ExcludedTools = uniq(r.ExcludedTools)
	return json.Marshal(r)
}

func uniq(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
