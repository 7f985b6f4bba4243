package types

import (
	"sort"
	"testing"
)

func TestAddressMissing(t *testing.T) {
	addr := Address{FullName: "Sita", Line1: "  ", City: "Lalitpur"}
	missing := addr.Missing()
	sort.Strings(missing)
	if len(missing) != 2 || missing[0] != "line1" || missing[1] != "phone" {
		t.Fatalf("unexpected missing fields %v", missing)
	}
}

func TestAddressValueDefaultsCountry(t *testing.T) {
	raw, err := Address{FullName: "Sita", Phone: "98", Line1: "Jhamsikhel", City: "Lalitpur"}.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var decoded Address
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if decoded.Country != "NP" {
		t.Fatalf("expected default country NP, got %q", decoded.Country)
	}
}

func TestAddressScanRejectsUnknownType(t *testing.T) {
	var addr Address
	if err := addr.Scan(42); err == nil {
		t.Fatalf("expected error for non-json scan source")
	}
}
