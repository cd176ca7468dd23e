package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Ceiling is a plan quota: either unlimited or bounded by a fixed count.
// The zero value is Bounded(0).
type Ceiling struct {
	limit     int
	unlimited bool
}

// Unlimited returns a ceiling that admits any count.
func Unlimited() Ceiling {
	return Ceiling{unlimited: true}
}

// Bounded returns a ceiling of n. Negative values are clamped to zero.
func Bounded(n int) Ceiling {
	if n < 0 {
		n = 0
	}
	return Ceiling{limit: n}
}

// IsUnlimited reports whether the ceiling has no bound.
func (c Ceiling) IsUnlimited() bool {
	return c.unlimited
}

// Value returns the bound and true, or 0 and false when unlimited.
func (c Ceiling) Value() (int, bool) {
	if c.unlimited {
		return 0, false
	}
	return c.limit, true
}

// Allows reports whether one more item fits when current items already exist.
func (c Ceiling) Allows(current int) bool {
	return c.unlimited || current < c.limit
}

// Remaining returns how many more items fit, and false when unlimited.
func (c Ceiling) Remaining(current int) (int, bool) {
	if c.unlimited {
		return 0, false
	}
	if current >= c.limit {
		return 0, true
	}
	return c.limit - current, true
}

func (c Ceiling) String() string {
	if c.unlimited {
		return "unlimited"
	}
	return strconv.Itoa(c.limit)
}

// MarshalJSON encodes an unlimited ceiling as "unlimited" and a bounded one as a number.
func (c Ceiling) MarshalJSON() ([]byte, error) {
	if c.unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.Itoa(c.limit)), nil
}

// UnmarshalJSON accepts either "unlimited" or a non-negative integer.
func (c *Ceiling) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "unlimited" {
			return fmt.Errorf("ceiling: unknown value %q", s)
		}
		*c = Unlimited()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ceiling: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("ceiling: negative bound %d", n)
	}
	*c = Bounded(n)
	return nil
}
