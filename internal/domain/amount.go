package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexAmount holds an amount exactly as it was stored: a JSON number or a
// numeric string. Decimal coerces it, so "abc" or an empty value count as 0.
type FlexAmount struct {
	Raw string
}

func NewFlexAmount(d decimal.Decimal) FlexAmount {
	return FlexAmount{Raw: d.String()}
}

func (a FlexAmount) Decimal() decimal.Decimal {
	trimmed := strings.TrimSpace(a.Raw)
	if trimmed == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return value
}

// Valid reports whether Raw parses as a number.
func (a FlexAmount) Valid() bool {
	_, err := decimal.NewFromString(strings.TrimSpace(a.Raw))
	return err == nil
}

func (a *FlexAmount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		a.Raw = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		a.Raw = s
		return nil
	}
	a.Raw = string(trimmed)
	return nil
}

func (a FlexAmount) MarshalJSON() ([]byte, error) {
	if a.Valid() {
		return []byte(a.Decimal().String()), nil
	}
	return json.Marshal(a.Raw)
}

func (a FlexAmount) Value() (driver.Value, error) {
	return a.Raw, nil
}

func (a *FlexAmount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		a.Raw = ""
	case string:
		a.Raw = v
	case []byte:
		a.Raw = string(v)
	case int64:
		a.Raw = fmt.Sprintf("%d", v)
	case float64:
		a.Raw = decimal.NewFromFloat(v).String()
	default:
		return fmt.Errorf("unsupported amount type %T", src)
	}
	return nil
}
