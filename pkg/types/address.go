package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is the delivery address captured at checkout and frozen on the order.
type Address struct {
	FullName   string  `json:"full_name" validate:"required"`
	Phone      string  `json:"phone" validate:"required"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	District   string  `json:"district,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Country    string  `json:"country,omitempty"`
}

// Missing returns the names of required fields that are blank.
func (a Address) Missing() []string {
	missing := []string{}
	for name, value := range map[string]string{
		"full_name": a.FullName,
		"phone":     a.Phone,
		"line1":     a.Line1,
		"city":      a.City,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Value serializes the address to JSON for a jsonb column.
func (a Address) Value() (driver.Value, error) {
	if strings.TrimSpace(a.Country) == "" {
		a.Country = "NP"
	}
	return json.Marshal(a)
}

// Scan decodes a jsonb column into the address.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded Address
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	*a = decoded
	return nil
}

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json scan type %T", value)
	}
}
