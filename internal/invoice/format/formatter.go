// Package format renders and parses the human-facing strings stored on
// invoices and members. Everything here is pure.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	periodPrefixLayout = "Jan 2006"
	dueDateLayout      = "January 2, 2006"
)

// ParseAmount parses a currency string such as "$1,250.00" or "250".
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount %q", raw)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %q", raw)
	}
	return amount, nil
}

// FormatAmount renders an amount with a dollar sign and two decimals.
func FormatAmount(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

// FormatBalance renders a member balance. A zero total is always "$0".
func FormatBalance(total decimal.Decimal, overdue bool) string {
	if total.IsZero() {
		return "$0"
	}
	if overdue {
		return FormatAmount(total) + " Overdue"
	}
	return FormatAmount(total) + " Outstanding"
}

// PeriodPrefix is the month/year portion of a period label, e.g. "Nov 2025".
func PeriodPrefix(at time.Time) string {
	return at.Format(periodPrefixLayout)
}

// PeriodLabel builds the label of the period starting at at, e.g.
// "Nov 2025 Yearly Subscription + Janaza Fund".
func PeriodLabel(at time.Time, planLabel string) string {
	planLabel = strings.TrimSpace(planLabel)
	if planLabel == "" {
		return PeriodPrefix(at)
	}
	return PeriodPrefix(at) + " " + planLabel
}

// DueDate renders a due date for member-facing messages.
func DueDate(due time.Time) string {
	return due.Format(dueDateLayout)
}
