package db

import "strings"

// IsUniqueViolation reports whether err is a unique constraint violation raised
// by Postgres or sqlite. When constraintName is provided, the helper also looks
// for the constraint (or indexed column list) in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return true
}
