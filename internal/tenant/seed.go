package tenant

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/routing"
)

// Seed is the development fixture file: tenants with their mailboxes, queues,
// routing rules, SLA policies and optionally some pre-existing tickets.
type Seed struct {
	Tenants []SeedTenant `yaml:"tenants"`
}

// SeedTenant describes one tenant.
type SeedTenant struct {
	ID             string        `yaml:"id"`
	Name           string        `yaml:"name"`
	Inactive       bool          `yaml:"inactive"`
	DefaultQueue   string        `yaml:"default_queue"`
	IgnoredSenders []string      `yaml:"ignored_senders"`
	Mailboxes      []SeedMailbox `yaml:"mailboxes"`
	Queues         []SeedQueue   `yaml:"queues"`
	Rules          []SeedRule    `yaml:"rules"`
	Policies       []SeedPolicy  `yaml:"sla_policies"`
	Tickets        []SeedTicket  `yaml:"tickets"`
}

type SeedMailbox struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

type SeedQueue struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SeedRule struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	MatchType   string   `yaml:"match_type"`
	Operator    string   `yaml:"operator"`
	Value       string   `yaml:"value"`
	Position    int      `yaml:"position"`
	Queue       string   `yaml:"queue"`
	AssignAgent string   `yaml:"assign_agent"`
	SetPriority string   `yaml:"set_priority"`
	AddTags     []string `yaml:"add_tags"`
	Disabled    bool     `yaml:"disabled"`
}

type SeedPolicy struct {
	Priority             string `yaml:"priority"`
	FirstResponseMinutes int    `yaml:"first_response_minutes"`
	ResolutionMinutes    int    `yaml:"resolution_minutes"`
}

type SeedTicket struct {
	Number         string    `yaml:"number"`
	Subject        string    `yaml:"subject"`
	Status         string    `yaml:"status"`
	Priority       string    `yaml:"priority"`
	RequesterEmail string    `yaml:"requester_email"`
	CreatedAt      time.Time `yaml:"created_at"`
}

// TicketSeeder accepts fully-formed tickets; the in-memory store implements it.
type TicketSeeder interface {
	PutTicket(ticket *domain.Ticket)
}

// LoadSeed parses a seed file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// SeedTargets are the repositories a seed is written to.
type SeedTargets struct {
	Tenants  repository.TenantRepository
	Rules    repository.RoutingRuleRepository
	Policies repository.SlaPolicyRepository
	Tickets  TicketSeeder
	Engine   *routing.Engine
}

// Apply writes the seed. Rules are validated the same way the admin API does.
func (s *Seed) Apply(ctx context.Context, to SeedTargets) error {
	for _, st := range s.Tenants {
		t := &domain.Tenant{
			ID:             st.ID,
			Name:           st.Name,
			Active:         !st.Inactive,
			IgnoredSenders: st.IgnoredSenders,
		}
		if st.DefaultQueue != "" {
			q := st.DefaultQueue
			t.DefaultQueueID = &q
		}
		if err := to.Tenants.Save(ctx, t); err != nil {
			return fmt.Errorf("seed tenant %s: %w", st.ID, err)
		}

		queueIDs := make(map[string]struct{}, len(st.Queues))
		for _, sq := range st.Queues {
			if err := to.Tenants.SaveQueue(ctx, &domain.Queue{ID: sq.ID, TenantID: st.ID, Name: sq.Name}); err != nil {
				return fmt.Errorf("seed queue %s: %w", sq.ID, err)
			}
			queueIDs[sq.ID] = struct{}{}
		}
		for _, sm := range st.Mailboxes {
			if err := to.Tenants.SaveMailbox(ctx, &domain.Mailbox{ID: sm.ID, TenantID: st.ID, Address: sm.Address, Active: true}); err != nil {
				return fmt.Errorf("seed mailbox %s: %w", sm.ID, err)
			}
		}

		rules := make([]domain.RoutingRule, 0, len(st.Rules))
		for _, sr := range st.Rules {
			rules = append(rules, sr.toDomain(st.ID))
		}
		if to.Engine != nil {
			if err := to.Engine.ValidateRules(st.ID, rules, queueIDs); err != nil {
				return fmt.Errorf("seed rules for %s: %w", st.ID, err)
			}
		}
		if err := to.Rules.ReplaceForTenant(ctx, st.ID, rules); err != nil {
			return fmt.Errorf("seed rules for %s: %w", st.ID, err)
		}

		for _, sp := range st.Policies {
			policy := &domain.SlaPolicy{
				TenantID:             st.ID,
				Priority:             domain.TicketPriority(sp.Priority),
				FirstResponseMinutes: sp.FirstResponseMinutes,
				ResolutionMinutes:    sp.ResolutionMinutes,
			}
			if err := to.Policies.Upsert(ctx, policy); err != nil {
				return fmt.Errorf("seed policy %s/%s: %w", st.ID, sp.Priority, err)
			}
		}

		if to.Tickets == nil {
			continue
		}
		for _, stk := range st.Tickets {
			number, err := domain.ParseTicketNumber(stk.Number)
			if err != nil {
				return fmt.Errorf("seed ticket %q: %w", stk.Number, err)
			}
			status := domain.TicketStatus(stk.Status)
			if status == "" {
				status = domain.TicketStatusOpen
			}
			priority := domain.TicketPriority(stk.Priority)
			if !priority.Valid() {
				priority = domain.TicketPriorityMedium
			}
			to.Tickets.PutTicket(&domain.Ticket{
				TenantID:       st.ID,
				Number:         number,
				Subject:        stk.Subject,
				Status:         status,
				Priority:       priority,
				Source:         domain.TicketSourceEmail,
				RequesterEmail: stk.RequesterEmail,
				CreatedAt:      stk.CreatedAt,
			})
		}
	}
	return nil
}

func (r SeedRule) toDomain(tenantID string) domain.RoutingRule {
	rule := domain.RoutingRule{
		ID:           r.ID,
		TenantID:     tenantID,
		Name:         r.Name,
		MatchType:    domain.RuleMatchType(r.MatchType),
		Operator:     domain.RuleOperator(r.Operator),
		Value:        r.Value,
		SortPosition: r.Position,
		QueueID:      r.Queue,
		AutoAddTags:  r.AddTags,
		Active:       !r.Disabled,
	}
	if r.AssignAgent != "" {
		agent := r.AssignAgent
		rule.AutoAssignAgentID = &agent
	}
	if r.SetPriority != "" {
		p := domain.TicketPriority(r.SetPriority)
		rule.AutoSetPriority = &p
	}
	return rule
}
