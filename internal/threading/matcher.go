// Package threading decides whether an inbound message continues an existing
// ticket conversation or starts a new one.
package threading

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/repository"
)

// HeaderTicketID is the wire-level threading header carried by every outbound message.
const HeaderTicketID = "X-SupportHub-TicketId"

// subjectTokenPattern matches "[SH-<ticket-number>]"; the number itself is validated by domain.ParseTicketNumber.
var subjectTokenPattern = regexp.MustCompile(`\[SH-([A-Za-z0-9-]+)\]`)

// MatchSource records which signal produced a match.
type MatchSource string

const (
	MatchSourceNone    MatchSource = "none"
	MatchSourceHeader  MatchSource = "header"
	MatchSourceSubject MatchSource = "subject"
)

// Result is either "new ticket" (Ticket == nil) or "append to Ticket".
type Result struct {
	Ticket *domain.Ticket
	Source MatchSource
}

// IsNew reports whether no live ticket matched.
func (r Result) IsNew() bool {
	return r.Ticket == nil
}

// TicketLookup resolves a ticket number inside one tenant.
type TicketLookup interface {
	GetByNumber(ctx context.Context, tenantID, number string) (*domain.Ticket, error)
}

// Matcher applies the threading precedence: header, then subject token, then new.
type Matcher struct {
	lookup TicketLookup
}

// NewMatcher builds a matcher over the tenant-scoped lookup.
func NewMatcher(lookup TicketLookup) *Matcher {
	return &Matcher{lookup: lookup}
}

// Match inspects headers and subject. A token that does not resolve to a live
// ticket of tenantID is ignored and the next signal is tried.
func (m *Matcher) Match(ctx context.Context, tenantID string, headers map[string]string, subject string) (Result, error) {
	if number, ok := HeaderValue(headers, HeaderTicketID); ok {
		ticket, err := m.resolve(ctx, tenantID, number)
		if err != nil {
			return Result{}, err
		}
		if ticket != nil {
			return Result{Ticket: ticket, Source: MatchSourceHeader}, nil
		}
	}

	for _, number := range SubjectTokens(subject) {
		ticket, err := m.resolve(ctx, tenantID, number)
		if err != nil {
			return Result{}, err
		}
		if ticket != nil {
			return Result{Ticket: ticket, Source: MatchSourceSubject}, nil
		}
	}

	return Result{Source: MatchSourceNone}, nil
}

func (m *Matcher) resolve(ctx context.Context, tenantID, raw string) (*domain.Ticket, error) {
	number, err := domain.ParseTicketNumber(raw)
	if err != nil {
		return nil, nil
	}
	ticket, err := m.lookup.GetByNumber(ctx, tenantID, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup ticket %s: %w", number, err)
	}
	if ticket.TenantID != tenantID || !ticket.IsLive() {
		return nil, nil
	}
	return ticket, nil
}

// HeaderValue looks a header up case-insensitively.
func HeaderValue(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	canonical := textproto.CanonicalMIMEHeaderKey(name)
	for k, v := range headers {
		if textproto.CanonicalMIMEHeaderKey(k) == canonical && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// SubjectTokens returns the well-formed ticket numbers of every "[SH-...]"
// token in subject, in order of appearance.
func SubjectTokens(subject string) []string {
	var numbers []string
	for _, m := range subjectTokenPattern.FindAllStringSubmatch(subject, -1) {
		if number, err := domain.ParseTicketNumber(m[1]); err == nil {
			numbers = append(numbers, number)
		}
	}
	return numbers
}

// FormatSubject prefixes subject with the ticket's token unless it is already present.
func FormatSubject(number, subject string) string {
	token := "[SH-" + number + "]"
	if strings.Contains(subject, token) {
		return subject
	}
	if subject == "" {
		return token
	}
	return token + " " + subject
}

// OutboundHeaders returns the threading headers for a message about ticket number.
func OutboundHeaders(number string) map[string]string {
	return map[string]string{HeaderTicketID: number}
}
