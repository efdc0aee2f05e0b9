package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const ticketNumberPrefix = "TKT"

var ticketNumberPattern = regexp.MustCompile(`^TKT-(\d{8})-(\d{4,})$`)

// ErrInvalidTicketNumber is returned for tokens that are not ticket numbers.
var ErrInvalidTicketNumber = errors.New("invalid ticket number")

// FormatTicketNumber renders the human-readable number, e.g. TKT-20260101-0007.
func FormatTicketNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", ticketNumberPrefix, day.UTC().Format("20060102"), seq)
}

// ParseTicketNumber normalizes and validates a number taken from a header or subject.
func ParseTicketNumber(raw string) (string, error) {
	number := strings.ToUpper(strings.TrimSpace(raw))
	m := ticketNumberPattern.FindStringSubmatch(number)
	if m == nil {
		return "", ErrInvalidTicketNumber
	}
	if _, err := time.Parse("20060102", m[1]); err != nil {
		return "", ErrInvalidTicketNumber
	}
	return number, nil
}
