package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal decodes a YAML scalar into an exact decimal, accepting both
// quoted and bare numbers.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}

	value, err := decimal.NewFromString(fmt.Sprintf("%v", raw))
	if err != nil {
		return fmt.Errorf("couldn't parse decimal: %w", err)
	}

	*d = Decimal{value}
	return nil
}
