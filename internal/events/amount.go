package events

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Amount is an arbitrary-precision monetary amount on the wire. Upstream
// encoders emit either a decimal string or a bare number; both decode without
// passing through floating point.
type Amount struct {
	*big.Int
}

// NewAmount wraps an existing big integer.
func NewAmount(i *big.Int) Amount {
	return Amount{Int: i}
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		a.Int = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Bare JSON number. json.Number semantics without float conversion.
		s = string(data)
	}

	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	a.Int = i
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Int == nil {
		return []byte("null"), nil
	}
	return json.Marshal(a.Int.String())
}
