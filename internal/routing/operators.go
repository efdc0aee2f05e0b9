package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/supporthub/internal/domain"
)

var (
	ErrEmptyValue            = errors.New("rule value is empty")
	ErrUnknownMatchType      = errors.New("unknown match type")
	ErrUnknownOperator       = errors.New("unknown operator")
	ErrForeignQueue          = errors.New("destination queue does not belong to tenant")
	ErrPatternTooLong        = errors.New("regex pattern exceeds length limit")
	ErrDuplicateSortPosition = errors.New("duplicate sort position")
	ErrSparseSortPosition    = errors.New("sort positions must be dense starting at 1")
)

func compareText(op domain.RuleOperator, field, value string) (bool, error) {
	f := strings.ToLower(field)
	v := strings.ToLower(value)
	switch op {
	case domain.OperatorEquals:
		return f == v, nil
	case domain.OperatorContains:
		return strings.Contains(f, v), nil
	case domain.OperatorStartsWith:
		return strings.HasPrefix(f, v), nil
	case domain.OperatorEndsWith:
		return strings.HasSuffix(f, v), nil
	case domain.OperatorInList:
		for _, item := range splitList(v) {
			if item == f {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, op)
	}
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
