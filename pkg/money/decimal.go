// Package money provides a fixed-point decimal type for NAV prices.
//
// NAV values are quoted to 4 fractional digits; a plain float64 would admit
// representation drift across repeated upsert/read cycles. Decimal stores
// the value as an int64 scaled by 10^4, giving exact equality and ordering
// for the 15-significant-digit range the data model requires.
package money

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const scale = 10000 // 4 fractional digits

// Decimal is a fixed-point value scaled by 10^4.
type Decimal struct {
	scaled int64
}

// Zero is the additive identity.
var Zero = Decimal{}

// Parse reads a decimal string such as "123.4567" or "100".
func Parse(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("money: empty decimal string")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	intPart, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Decimal{}, fmt.Errorf("money: invalid decimal %q: %w", s, err)
	}
	frac := int64(0)
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > 4 {
			fracStr = fracStr[:4] // truncate beyond 4 fractional digits
		}
		for len(fracStr) < 4 {
			fracStr += "0"
		}
		frac, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return Decimal{}, fmt.Errorf("money: invalid fractional part %q: %w", s, err)
		}
	}
	scaled := intPart*scale + frac
	if neg {
		scaled = -scaled
	}
	return Decimal{scaled: scaled}, nil
}

// FromFloat converts a float64 to Decimal, rounding to 4 fractional digits.
// Scan uses it when a driver hands back a NUMERIC column as float64; NAV
// ingestion from upstream strings always goes through Parse.
func FromFloat(f float64) Decimal {
	return Decimal{scaled: int64(math.Round(f * scale))}
}

// Float64 returns the value as a float64 for arithmetic in the analytics
// engine, where double precision is acceptable because results are
// themselves reported as rounded floats.
func (d Decimal) Float64() float64 {
	return float64(d.scaled) / scale
}

// String renders the value with exactly 4 fractional digits.
func (d Decimal) String() string {
	neg := d.scaled < 0
	v := d.scaled
	if neg {
		v = -v
	}
	whole := v / scale
	frac := v % scale
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%04d", sign, whole, frac)
}

// Value implements driver.Valuer so Decimal can be written directly via
// database/sql / sqldb.Exec as a NUMERIC(15,4) column.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner for reading a NUMERIC column back.
func (d *Decimal) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case float64:
		*d = FromFloat(v)
		return nil
	case nil:
		*d = Zero
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T into Decimal", src)
	}
}

// Equal reports whether two Decimals represent the same scaled value.
func (d Decimal) Equal(o Decimal) bool {
	return d.scaled == o.scaled
}
