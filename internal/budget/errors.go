package budget

import "errors"

var (
	// ErrInsufficientBudget is returned when a penalty cancellation costs more
	// than what is left today. Nothing is deducted.
	ErrInsufficientBudget = errors.New("insufficient budget")

	// ErrNoSuchRule is returned for apps without an enabled rule.
	ErrNoSuchRule = errors.New("no enabled rule for app")
)
