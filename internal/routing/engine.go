// Package routing evaluates a tenant's ordered routing rules against a ticket.
// Evaluation performs no I/O; callers hand in a snapshot of the rules and apply
// the returned decision themselves.
package routing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/supporthub/internal/domain"
)

// TicketContext is the observable part of a ticket that rules may inspect.
type TicketContext struct {
	RequesterEmail string
	Subject        string
	Body           string
	IssueType      string
	System         string
	Tags           []string
}

// ContextFromTicket builds the evaluation context. body is the first
// conversational entry, which the ticket itself does not carry.
func ContextFromTicket(t *domain.Ticket, body string) TicketContext {
	if body == "" {
		body = t.Description
	}
	return TicketContext{
		RequesterEmail: t.RequesterEmail,
		Subject:        t.Subject,
		Body:           body,
		IssueType:      t.IssueType,
		System:         t.System,
		Tags:           append([]string(nil), t.Tags...),
	}
}

// RuleSet is a read-only snapshot of a tenant's routing configuration.
type RuleSet struct {
	TenantID       string
	Rules          []domain.RoutingRule
	DefaultQueueID *string
	// QueueIDs lists queues owned by the tenant. Nil disables the ownership check.
	QueueIDs map[string]struct{}
}

// RuleError reports a rule that could not be evaluated.
type RuleError struct {
	RuleID string
	Err    error
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e RuleError) Unwrap() error {
	return e.Err
}

// Decision is the outcome of evaluating a RuleSet.
type Decision struct {
	QueueID       *string
	RuleID        string
	Fallback      bool
	AssignAgentID *string
	Priority      *domain.TicketPriority
	AddTags       []string
	Errors        []RuleError
}

// Matched reports whether a rule (not the fallback) produced the decision.
func (d Decision) Matched() bool {
	return d.RuleID != ""
}

// Routed reports whether the decision carries a queue.
func (d Decision) Routed() bool {
	return d.QueueID != nil
}

// Options tunes the engine's regex guard.
type Options struct {
	RegexTimeout     time.Duration
	MaxPatternLength int
}

// Engine evaluates rules. It is safe for concurrent use.
type Engine struct {
	patterns *patternCache
}

// NewEngine constructs an engine with the given regex guard.
func NewEngine(opts Options) *Engine {
	if opts.RegexTimeout <= 0 {
		opts.RegexTimeout = 100 * time.Millisecond
	}
	if opts.MaxPatternLength <= 0 {
		opts.MaxPatternLength = 512
	}
	return &Engine{patterns: newPatternCache(opts.RegexTimeout, opts.MaxPatternLength)}
}

// Evaluate walks active rules in ascending sort order and returns the first match.
// Without a match the tenant default queue is returned with Fallback set; without a
// default queue the decision carries no queue.
func (e *Engine) Evaluate(tc TicketContext, set RuleSet) Decision {
	var decision Decision
	for _, rule := range orderedRules(set.Rules) {
		if !rule.Active {
			continue
		}
		if set.QueueIDs != nil {
			if _, ok := set.QueueIDs[rule.QueueID]; !ok {
				decision.Errors = append(decision.Errors, RuleError{RuleID: rule.ID, Err: ErrForeignQueue})
				continue
			}
		}
		matched, err := e.matches(rule, tc)
		if err != nil {
			decision.Errors = append(decision.Errors, RuleError{RuleID: rule.ID, Err: err})
			continue
		}
		if !matched {
			continue
		}
		queueID := rule.QueueID
		decision.QueueID = &queueID
		decision.RuleID = rule.ID
		if rule.AutoAssignAgentID != nil {
			agent := *rule.AutoAssignAgentID
			decision.AssignAgentID = &agent
		}
		if rule.AutoSetPriority != nil {
			priority := *rule.AutoSetPriority
			decision.Priority = &priority
		}
		decision.AddTags = append([]string(nil), rule.AutoAddTags...)
		return decision
	}

	if set.DefaultQueueID != nil {
		queueID := *set.DefaultQueueID
		decision.QueueID = &queueID
		decision.Fallback = true
	}
	return decision
}

func (e *Engine) matches(rule domain.RoutingRule, tc TicketContext) (bool, error) {
	value := strings.TrimSpace(rule.Value)
	if value == "" {
		return false, ErrEmptyValue
	}

	switch rule.MatchType {
	case domain.MatchSenderDomain:
		domainPart := senderDomain(tc.RequesterEmail)
		if rule.Operator != domain.OperatorRegex {
			value = trimAt(value)
		}
		return e.compare(rule.Operator, domainPart, value)
	case domain.MatchSubjectKeyword:
		return e.compare(rule.Operator, tc.Subject, value)
	case domain.MatchBodyKeyword:
		return e.compare(rule.Operator, tc.Body, value)
	case domain.MatchIssueType:
		return e.compare(rule.Operator, tc.IssueType, value)
	case domain.MatchSystem:
		return e.compare(rule.Operator, tc.System, value)
	case domain.MatchRequesterEmail:
		return e.compare(rule.Operator, strings.TrimSpace(tc.RequesterEmail), value)
	case domain.MatchTag:
		for _, tag := range tc.Tags {
			ok, err := e.compare(rule.Operator, tag, value)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownMatchType, rule.MatchType)
	}
}

func (e *Engine) compare(op domain.RuleOperator, field, value string) (bool, error) {
	if field == "" {
		return false, nil
	}
	if op == domain.OperatorRegex {
		return e.patterns.match(value, field)
	}
	return compareText(op, field, value)
}

// orderedRules sorts a copy by sort position, breaking ties by id so a
// misconfigured duplicate position still evaluates deterministically.
func orderedRules(rules []domain.RoutingRule) []domain.RoutingRule {
	ordered := append([]domain.RoutingRule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SortPosition != ordered[j].SortPosition {
			return ordered[i].SortPosition < ordered[j].SortPosition
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

func senderDomain(email string) string {
	email = strings.TrimSpace(email)
	idx := strings.LastIndex(email, "@")
	if idx < 0 || idx == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[idx+1:])
}

func trimAt(value string) string {
	if !strings.Contains(value, ",") {
		return strings.TrimPrefix(value, "@")
	}
	parts := splitList(value)
	for i := range parts {
		parts[i] = strings.TrimPrefix(parts[i], "@")
	}
	return strings.Join(parts, ",")
}
