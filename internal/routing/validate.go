package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spec-kit/supporthub/internal/domain"
)

// ValidateRules checks a tenant's rule list before it is persisted: sort positions
// must be unique and dense from 1, queues must belong to the tenant, operators and
// match types must be known and regexes must compile within the length guard.
func (e *Engine) ValidateRules(tenantID string, rules []domain.RoutingRule, queueIDs map[string]struct{}) error {
	var errs []error

	positions := make([]int, 0, len(rules))
	seen := make(map[int]string, len(rules))
	for _, rule := range rules {
		if other, dup := seen[rule.SortPosition]; dup {
			errs = append(errs, fmt.Errorf("%w: %d used by %s and %s", ErrDuplicateSortPosition, rule.SortPosition, other, rule.ID))
		}
		seen[rule.SortPosition] = rule.ID
		positions = append(positions, rule.SortPosition)

		if rule.TenantID != "" && rule.TenantID != tenantID {
			errs = append(errs, RuleError{RuleID: rule.ID, Err: errors.New("rule belongs to another tenant")})
		}
		if queueIDs != nil {
			if _, ok := queueIDs[rule.QueueID]; !ok {
				errs = append(errs, RuleError{RuleID: rule.ID, Err: ErrForeignQueue})
			}
		}
		if err := e.validateRule(rule); err != nil {
			errs = append(errs, RuleError{RuleID: rule.ID, Err: err})
		}
	}

	sort.Ints(positions)
	for i, pos := range positions {
		if pos != i+1 {
			errs = append(errs, ErrSparseSortPosition)
			break
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) validateRule(rule domain.RoutingRule) error {
	switch rule.MatchType {
	case domain.MatchSenderDomain, domain.MatchSubjectKeyword, domain.MatchBodyKeyword,
		domain.MatchIssueType, domain.MatchSystem, domain.MatchTag, domain.MatchRequesterEmail:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMatchType, rule.MatchType)
	}
	if strings.TrimSpace(rule.Value) == "" {
		return ErrEmptyValue
	}
	if rule.Operator == domain.OperatorInList && len(splitList(rule.Value)) == 0 {
		return ErrEmptyValue
	}
	if rule.AutoSetPriority != nil && !rule.AutoSetPriority.Valid() {
		return fmt.Errorf("invalid auto priority %q", *rule.AutoSetPriority)
	}
	switch rule.Operator {
	case domain.OperatorRegex:
		_, err := e.patterns.compile(strings.TrimSpace(rule.Value))
		return err
	case domain.OperatorEquals, domain.OperatorContains, domain.OperatorStartsWith,
		domain.OperatorEndsWith, domain.OperatorInList:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperator, rule.Operator)
	}
}
