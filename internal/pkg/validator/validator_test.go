package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	CustomerID string `json:"customer_id" validate:"required,uuid"`
	Category   string `json:"category" validate:"required,point_category"`
	Type       string `json:"type" validate:"required,point_type"`
	Choice     string `json:"choice" validate:"omitempty,bet_choice"`
	Amount     int64  `json:"amount" validate:"gt=0"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	errs := Validate(sample{CustomerID: "x", Category: "savings", Type: "gift", Choice: "over"})

	assert.Equal(t, "Must be a UUID", errs["customer_id"])
	assert.Contains(t, errs["category"], "general or betting")
	assert.Contains(t, errs["type"], "charge")
	assert.Contains(t, errs["choice"], "home, draw, or away")
	assert.Equal(t, "Value must be greater than 0", errs["amount"])
}

func TestValidatePasses(t *testing.T) {
	errs := Validate(sample{
		CustomerID: "3f1c1d3e-8a63-4a53-9b7c-0a8f6a4b9e01",
		Category:   "betting",
		Type:       "exchange",
		Amount:     10,
	})
	assert.Nil(t, errs)
}
