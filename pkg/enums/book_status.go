package enums

import "fmt"

// BookStatus mirrors the availability of a catalog book.
type BookStatus string

const (
	BookStatusAvailable BookStatus = "available"
	BookStatusSold      BookStatus = "sold"
	BookStatusDonated   BookStatus = "donated"
)

var validBookStatuses = []BookStatus{
	BookStatusAvailable,
	BookStatusSold,
	BookStatusDonated,
}

// String implements fmt.Stringer.
func (b BookStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookStatus.
func (b BookStatus) IsValid() bool {
	for _, candidate := range validBookStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBookStatus converts raw input into a BookStatus.
func ParseBookStatus(value string) (BookStatus, error) {
	for _, candidate := range validBookStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid book status %q", value)
}
