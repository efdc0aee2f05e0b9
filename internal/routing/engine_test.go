package routing

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/supporthub/internal/domain"
)

func rule(id string, pos int, mt domain.RuleMatchType, op domain.RuleOperator, value, queue string) domain.RoutingRule {
	return domain.RoutingRule{
		ID:           id,
		TenantID:     "acme",
		MatchType:    mt,
		Operator:     op,
		Value:        value,
		SortPosition: pos,
		QueueID:      queue,
		Active:       true,
	}
}

func strPtr(s string) *string { return &s }

func TestEvaluateFirstMatchWins(t *testing.T) {
	engine := NewEngine(Options{})
	r1 := rule("r1", 1, domain.MatchSenderDomain, domain.OperatorEquals, "@acme.com", "tier1")
	r1.AutoAddTags = []string{"password"}
	r2 := rule("r2", 2, domain.MatchSubjectKeyword, domain.OperatorContains, "password", "security")

	decision := engine.Evaluate(TicketContext{
		RequesterEmail: "alice@acme.com",
		Subject:        "Password reset",
	}, RuleSet{TenantID: "acme", Rules: []domain.RoutingRule{r2, r1}})

	require.True(t, decision.Routed())
	assert.Equal(t, "tier1", *decision.QueueID)
	assert.Equal(t, "r1", decision.RuleID)
	assert.False(t, decision.Fallback)
	assert.Equal(t, []string{"password"}, decision.AddTags)
}

func TestEvaluateIgnoresInterleavedInactiveRules(t *testing.T) {
	engine := NewEngine(Options{})
	tc := TicketContext{RequesterEmail: "bob@globex.com", Subject: "VPN down", Tags: []string{"network"}}

	active := []domain.RoutingRule{
		rule("a", 2, domain.MatchTag, domain.OperatorEquals, "network", "netops"),
		rule("b", 4, domain.MatchSubjectKeyword, domain.OperatorContains, "vpn", "security"),
	}
	inactive := []domain.RoutingRule{
		rule("x", 1, domain.MatchSubjectKeyword, domain.OperatorContains, "vpn", "wrong-1"),
		rule("y", 3, domain.MatchSenderDomain, domain.OperatorEquals, "globex.com", "wrong-2"),
	}
	for i := range inactive {
		inactive[i].Active = false
	}

	permutations := [][]domain.RoutingRule{
		{active[0], active[1], inactive[0], inactive[1]},
		{inactive[1], active[1], inactive[0], active[0]},
		{inactive[0], inactive[1], active[1], active[0]},
	}
	for _, rules := range permutations {
		decision := engine.Evaluate(tc, RuleSet{Rules: rules})
		require.True(t, decision.Routed())
		assert.Equal(t, "netops", *decision.QueueID)
	}
}

func TestEvaluateFallsBackToDefaultQueue(t *testing.T) {
	engine := NewEngine(Options{})
	set := RuleSet{
		Rules:          []domain.RoutingRule{rule("r1", 1, domain.MatchSystem, domain.OperatorEquals, "billing", "finance")},
		DefaultQueueID: strPtr("general"),
	}

	decision := engine.Evaluate(TicketContext{System: "crm"}, set)
	require.True(t, decision.Routed())
	assert.Equal(t, "general", *decision.QueueID)
	assert.True(t, decision.Fallback)
	assert.False(t, decision.Matched())

	set.DefaultQueueID = nil
	decision = engine.Evaluate(TicketContext{System: "crm"}, set)
	assert.False(t, decision.Routed())
	assert.False(t, decision.Fallback)
	assert.Empty(t, decision.Errors)
}

func TestEvaluateOperators(t *testing.T) {
	engine := NewEngine(Options{})
	tc := TicketContext{
		RequesterEmail: "Carol@Support.Initech.com",
		Subject:        "Invoice #4411 overdue",
		Body:           "Please check the attached invoice",
		IssueType:      "Billing",
		System:         "ERP",
		Tags:           []string{"vip", "emea"},
	}

	cases := []struct {
		name string
		rule domain.RoutingRule
		want bool
	}{
		{"sender domain ends with", rule("r", 1, domain.MatchSenderDomain, domain.OperatorEndsWith, "@initech.com", "q"), true},
		{"sender domain in list", rule("r", 1, domain.MatchSenderDomain, domain.OperatorInList, "@acme.com, support.initech.com", "q"), true},
		{"subject starts with", rule("r", 1, domain.MatchSubjectKeyword, domain.OperatorStartsWith, "invoice", "q"), true},
		{"subject regex", rule("r", 1, domain.MatchSubjectKeyword, domain.OperatorRegex, `#\d{4}\b`, "q"), true},
		{"body contains", rule("r", 1, domain.MatchBodyKeyword, domain.OperatorContains, "ATTACHED", "q"), true},
		{"issue type equals", rule("r", 1, domain.MatchIssueType, domain.OperatorEquals, "billing", "q"), true},
		{"system equals miss", rule("r", 1, domain.MatchSystem, domain.OperatorEquals, "CRM", "q"), false},
		{"requester email equals", rule("r", 1, domain.MatchRequesterEmail, domain.OperatorEquals, "carol@support.initech.com", "q"), true},
		{"tag membership", rule("r", 1, domain.MatchTag, domain.OperatorInList, "apac,emea", "q"), true},
		{"tag miss", rule("r", 1, domain.MatchTag, domain.OperatorEquals, "gold", "q"), false},
	}
	for _, tc2 := range cases {
		t.Run(tc2.name, func(t *testing.T) {
			decision := engine.Evaluate(tc, RuleSet{Rules: []domain.RoutingRule{tc2.rule}})
			assert.Equal(t, tc2.want, decision.Matched())
			assert.Empty(t, decision.Errors)
		})
	}
}

func TestEvaluateCopiesAutoActions(t *testing.T) {
	engine := NewEngine(Options{})
	high := domain.TicketPriorityHigh
	r := rule("r1", 1, domain.MatchSubjectKeyword, domain.OperatorContains, "outage", "ops")
	r.AutoAssignAgentID = strPtr("agent-7")
	r.AutoSetPriority = &high
	r.AutoAddTags = []string{"incident"}

	decision := engine.Evaluate(TicketContext{Subject: "Major outage"}, RuleSet{Rules: []domain.RoutingRule{r}})

	require.NotNil(t, decision.AssignAgentID)
	assert.Equal(t, "agent-7", *decision.AssignAgentID)
	require.NotNil(t, decision.Priority)
	assert.Equal(t, domain.TicketPriorityHigh, *decision.Priority)

	decision.AddTags[0] = "mutated"
	assert.Equal(t, "incident", r.AutoAddTags[0])
}

func TestEvaluateSkipsForeignQueue(t *testing.T) {
	engine := NewEngine(Options{})
	set := RuleSet{
		Rules: []domain.RoutingRule{
			rule("r1", 1, domain.MatchSubjectKeyword, domain.OperatorContains, "help", "other-tenant-queue"),
			rule("r2", 2, domain.MatchSubjectKeyword, domain.OperatorContains, "help", "tier1"),
		},
		QueueIDs: map[string]struct{}{"tier1": {}},
	}

	decision := engine.Evaluate(TicketContext{Subject: "help me"}, set)

	assert.Equal(t, "r2", decision.RuleID)
	require.Len(t, decision.Errors, 1)
	assert.True(t, errors.Is(decision.Errors[0].Err, ErrForeignQueue))
}

func TestEvaluateInvalidRegexIsNonMatching(t *testing.T) {
	engine := NewEngine(Options{})
	set := RuleSet{
		Rules: []domain.RoutingRule{
			rule("bad", 1, domain.MatchSubjectKeyword, domain.OperatorRegex, "([unclosed", "q1"),
			rule("good", 2, domain.MatchSubjectKeyword, domain.OperatorContains, "printer", "q2"),
		},
	}

	decision := engine.Evaluate(TicketContext{Subject: "printer jam"}, set)

	assert.Equal(t, "good", decision.RuleID)
	require.Len(t, decision.Errors, 1)
	assert.Equal(t, "bad", decision.Errors[0].RuleID)
}

func TestEvaluateRegexTimeoutGuard(t *testing.T) {
	engine := NewEngine(Options{RegexTimeout: 20 * time.Millisecond})
	set := RuleSet{
		Rules:          []domain.RoutingRule{rule("evil", 1, domain.MatchBodyKeyword, domain.OperatorRegex, `^(a+)+$`, "q1")},
		DefaultQueueID: strPtr("general"),
	}
	body := strings.Repeat("a", 64) + "!"

	start := time.Now()
	decision := engine.Evaluate(TicketContext{Body: body}, set)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, decision.Fallback)
	require.Len(t, decision.Errors, 1)
	assert.Equal(t, "evil", decision.Errors[0].RuleID)
}

func TestEvaluatePatternLengthGuard(t *testing.T) {
	engine := NewEngine(Options{MaxPatternLength: 8})
	set := RuleSet{Rules: []domain.RoutingRule{rule("long", 1, domain.MatchSubjectKeyword, domain.OperatorRegex, "abcdefghijk", "q")}}

	decision := engine.Evaluate(TicketContext{Subject: "abcdefghijk"}, set)

	assert.False(t, decision.Matched())
	require.Len(t, decision.Errors, 1)
	assert.ErrorIs(t, decision.Errors[0].Err, ErrPatternTooLong)
}

func TestValidateRules(t *testing.T) {
	engine := NewEngine(Options{})
	queues := map[string]struct{}{"tier1": {}, "security": {}}

	ok := []domain.RoutingRule{
		rule("r1", 1, domain.MatchSenderDomain, domain.OperatorEquals, "acme.com", "tier1"),
		rule("r2", 2, domain.MatchSubjectKeyword, domain.OperatorRegex, "pass(word)?", "security"),
	}
	assert.NoError(t, engine.ValidateRules("acme", ok, queues))

	dup := []domain.RoutingRule{
		rule("r1", 1, domain.MatchSenderDomain, domain.OperatorEquals, "acme.com", "tier1"),
		rule("r2", 1, domain.MatchSubjectKeyword, domain.OperatorContains, "x", "tier1"),
	}
	err := engine.ValidateRules("acme", dup, queues)
	assert.ErrorIs(t, err, ErrDuplicateSortPosition)

	sparse := []domain.RoutingRule{rule("r1", 2, domain.MatchSystem, domain.OperatorEquals, "erp", "tier1")}
	assert.ErrorIs(t, engine.ValidateRules("acme", sparse, queues), ErrSparseSortPosition)

	foreign := []domain.RoutingRule{rule("r1", 1, domain.MatchSystem, domain.OperatorEquals, "erp", "elsewhere")}
	assert.Error(t, engine.ValidateRules("acme", foreign, queues))

	badRegex := []domain.RoutingRule{rule("r1", 1, domain.MatchSystem, domain.OperatorRegex, "(", "tier1")}
	assert.Error(t, engine.ValidateRules("acme", badRegex, queues))

	blank := []domain.RoutingRule{rule("r1", 1, domain.MatchSubjectKeyword, domain.OperatorContains, "   ", "tier1")}
	assert.ErrorIs(t, engine.ValidateRules("acme", blank, queues), ErrEmptyValue)

	emptyList := []domain.RoutingRule{rule("r1", 1, domain.MatchTag, domain.OperatorInList, " , ,", "tier1")}
	assert.ErrorIs(t, engine.ValidateRules("acme", emptyList, queues), ErrEmptyValue)
}

func TestValidatedRulesEvaluateWithoutErrors(t *testing.T) {
	engine := NewEngine(Options{})
	rules := []domain.RoutingRule{rule("r1", 1, domain.MatchSubjectKeyword, domain.OperatorContains, "  printer  ", "tier1")}
	require.NoError(t, engine.ValidateRules("acme", rules, map[string]struct{}{"tier1": {}}))

	decision := engine.Evaluate(TicketContext{Subject: "printer jam"}, RuleSet{Rules: rules})
	assert.Equal(t, "r1", decision.RuleID)
	assert.Empty(t, decision.Errors)
}
