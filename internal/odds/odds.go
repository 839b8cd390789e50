// Package odds handles odds values from the OddsStream service
// without losing precision, and tracks live market state fed by
// push updates.
package odds

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Odds is a probability-like value in micros (1.0 == 1_000_000).
type Odds int64

var _ json.Unmarshaler = (*Odds)(nil)

const Scale int64 = 1_000_000

func (o *Odds) UnmarshalJSON(data []byte) error {
	if len(data) > 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	// Else we assume that it is a raw number.

	var res int64
	i := 0

	for i < len(data) && data[i] != '.' {
		res = res*10 + int64(data[i]-'0')*Scale
		i++
	}

	if i < len(data) && data[i] == '.' {
		i++
		mult := Scale
		for i < len(data) && mult > 1 {
			mult /= 10
			res += int64(data[i]-'0') * mult
			i++
		}
	}

	*o = Odds(res)
	return nil
}

func (o Odds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(o.String())), nil
}

// Float converts to float64. Only for display and strategy math, never
// for wire round-trips.
func (o Odds) Float() float64 {
	return float64(o) / float64(Scale)
}

// Decimal converts to an exact decimal for strategy math.
func (o Odds) Decimal() decimal.Decimal {
	return decimal.New(int64(o), -6)
}

func (o Odds) String() string {
	return strconv.FormatFloat(o.Float(), 'f', -1, 64)
}
