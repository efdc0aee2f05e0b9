package domain

import "time"

// RuleMatchType selects the ticket attribute a rule inspects.
type RuleMatchType string

const (
	MatchSenderDomain   RuleMatchType = "SENDER_DOMAIN"
	MatchSubjectKeyword RuleMatchType = "SUBJECT_KEYWORD"
	MatchBodyKeyword    RuleMatchType = "BODY_KEYWORD"
	MatchIssueType      RuleMatchType = "ISSUE_TYPE"
	MatchSystem         RuleMatchType = "SYSTEM"
	MatchTag            RuleMatchType = "TAG"
	MatchRequesterEmail RuleMatchType = "REQUESTER_EMAIL"
)

// RuleOperator is the fixed comparison set available to admins.
type RuleOperator string

const (
	OperatorEquals     RuleOperator = "EQUALS"
	OperatorContains   RuleOperator = "CONTAINS"
	OperatorStartsWith RuleOperator = "STARTS_WITH"
	OperatorEndsWith   RuleOperator = "ENDS_WITH"
	OperatorRegex      RuleOperator = "REGEX"
	OperatorInList     RuleOperator = "IN_LIST"
)

// RoutingRule is one entry of a tenant's ordered rule list.
type RoutingRule struct {
	ID                string
	TenantID          string
	Name              string
	MatchType         RuleMatchType
	Operator          RuleOperator
	Value             string
	SortPosition      int
	QueueID           string
	AutoAssignAgentID *string
	AutoSetPriority   *TicketPriority
	AutoAddTags       []string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
