package domain

import (
	"strconv"
	"strings"
	"time"
)

// DefaultGoal is used when the sign-up form leaves the goal empty.
const DefaultGoal = "GANHAR_MASSA"

const birthDateLayout = "02/01/2006"

// ParseDecimal parses a positive number that may use a comma as decimal separator.
func ParseDecimal(field, value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, Validationf("%s is required", field)
	}

	number, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil || number <= 0 {
		return 0, Validationf("%s must be a positive number", field)
	}

	return number, nil
}

// ParseBirthDate accepts DD/MM/YYYY or YYYY-MM-DD and returns the ISO form
// YYYY-MM-DD. Dates in the future are rejected.
func ParseBirthDate(value string, now time.Time) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", Validationf("birth date is required")
	}

	date, err := time.Parse(birthDateLayout, value)
	if err != nil {
		date, err = time.Parse(time.DateOnly, value)
	}

	if err != nil {
		return "", Validationf("birth date must be DD/MM/YYYY")
	}

	if date.After(now) {
		return "", Validationf("birth date is in the future")
	}

	return date.Format(time.DateOnly), nil
}

// Required returns a validation error naming field if value is blank.
func Required(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", Validationf("%s is required", field)
	}

	return value, nil
}

// FormatBirthDate renders a stored birth date as DD/MM/YYYY for editing.
// Values that are not ISO dates are returned unchanged.
func FormatBirthDate(value string) string {
	if len(value) > len(time.DateOnly) {
		value = value[:len(time.DateOnly)]
	}

	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return value
	}

	return date.Format(birthDateLayout)
}
