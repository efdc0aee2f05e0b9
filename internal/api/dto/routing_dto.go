package dto

import (
	"time"

	"github.com/spec-kit/supporthub/internal/domain"
)

// RoutingRuleRequest describes one rule in a replacement list.
type RoutingRuleRequest struct {
	Name              string                 `json:"name"`
	MatchType         domain.RuleMatchType   `json:"match_type"`
	Operator          domain.RuleOperator    `json:"operator"`
	Value             string                 `json:"value"`
	SortPosition      int                    `json:"sort_position"`
	QueueID           string                 `json:"queue_id"`
	AutoAssignAgentID *string                `json:"auto_assign_agent_id"`
	AutoSetPriority   *domain.TicketPriority `json:"auto_set_priority"`
	AutoAddTags       []string               `json:"auto_add_tags"`
	Active            *bool                  `json:"active"`
}

// ReplaceRulesRequest replaces the tenant's full rule list.
type ReplaceRulesRequest struct {
	Rules []RoutingRuleRequest `json:"rules"`
}

// RoutingRuleResponse is a stored rule.
type RoutingRuleResponse struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	MatchType         domain.RuleMatchType   `json:"match_type"`
	Operator          domain.RuleOperator    `json:"operator"`
	Value             string                 `json:"value"`
	SortPosition      int                    `json:"sort_position"`
	QueueID           string                 `json:"queue_id"`
	AutoAssignAgentID *string                `json:"auto_assign_agent_id,omitempty"`
	AutoSetPriority   *domain.TicketPriority `json:"auto_set_priority,omitempty"`
	AutoAddTags       []string               `json:"auto_add_tags"`
	Active            bool                   `json:"active"`
	UpdatedAt         time.Time              `json:"updated_at"`
}
