package store

import (
	"errors"
	"time"
)

// NullableString converts an empty string to a SQL NULL argument.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime converts a nil time pointer to a SQL NULL argument.
func NullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

// NullableInt64 converts a nil int pointer to a SQL NULL argument.
func NullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

// FormatTime renders a timestamp the way all tables store them.
func FormatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

// ParseTime accepts both RFC3339 and the bare SQLite datetime format.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// BoolToInt maps a bool onto the 0/1 convention used in the schema.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// MakePlaceholders builds a "?,?,?" list for IN clauses.
func MakePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
