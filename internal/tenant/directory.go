// Package tenant reads the admin-owned tenant configuration as per-run snapshots.
package tenant

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/routing"
)

// Snapshot is a read-only view of one tenant's configuration, taken once per run.
type Snapshot struct {
	Tenant    domain.Tenant
	Mailboxes []domain.Mailbox
	Queues    []domain.Queue
	Rules     routing.RuleSet
	Policies  []domain.SlaPolicy

	ignored       []string
	mailboxOwners map[string]struct{}
}

// IsIgnoredSender reports whether address matches an ignore entry: an exact
// address or an "@domain" suffix.
func (s *Snapshot) IsIgnoredSender(address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return false
	}
	for _, entry := range s.ignored {
		if strings.HasPrefix(entry, "@") {
			if strings.HasSuffix(address, entry) {
				return true
			}
			continue
		}
		if address == entry {
			return true
		}
	}
	return false
}

// IsOwnMailbox reports whether address is one of the tenant's mailboxes.
func (s *Snapshot) IsOwnMailbox(address string) bool {
	_, ok := s.mailboxOwners[strings.ToLower(strings.TrimSpace(address))]
	return ok
}

// Policy returns the policy for priority, or nil.
func (s *Snapshot) Policy(priority domain.TicketPriority) *domain.SlaPolicy {
	for i := range s.Policies {
		if s.Policies[i].Priority == priority {
			return &s.Policies[i]
		}
	}
	return nil
}

// Directory assembles snapshots from the repositories.
type Directory struct {
	tenants       repository.TenantRepository
	rules         repository.RoutingRuleRepository
	policies      repository.SlaPolicyRepository
	globalIgnored []string
}

// NewDirectory builds a directory. globalIgnored applies to every tenant.
func NewDirectory(tenants repository.TenantRepository, rules repository.RoutingRuleRepository, policies repository.SlaPolicyRepository, globalIgnored []string) *Directory {
	return &Directory{tenants: tenants, rules: rules, policies: policies, globalIgnored: normalizeList(globalIgnored)}
}

// ActiveTenants lists tenants the workers should process.
func (d *Directory) ActiveTenants(ctx context.Context) ([]domain.Tenant, error) {
	return d.tenants.ListActive(ctx)
}

// Mailbox resolves a mailbox by id.
func (d *Directory) Mailbox(ctx context.Context, mailboxID string) (*domain.Mailbox, error) {
	return d.tenants.GetMailbox(ctx, mailboxID)
}

// QueueIDs returns the set of queue ids owned by tenantID.
func (d *Directory) QueueIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	queues, err := d.tenants.ListQueues(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		ids[q.ID] = struct{}{}
	}
	return ids, nil
}

// Snapshot loads everything the pipelines need for tenantID.
func (d *Directory) Snapshot(ctx context.Context, tenantID string) (*Snapshot, error) {
	t, err := d.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	mailboxes, err := d.tenants.ListMailboxes(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load mailboxes: %w", err)
	}
	queues, err := d.tenants.ListQueues(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load queues: %w", err)
	}
	rules, err := d.rules.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load routing rules: %w", err)
	}
	policies, err := d.policies.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load sla policies: %w", err)
	}

	queueIDs := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueIDs[q.ID] = struct{}{}
	}
	owners := make(map[string]struct{}, len(mailboxes))
	for _, m := range mailboxes {
		owners[strings.ToLower(strings.TrimSpace(m.Address))] = struct{}{}
	}

	var defaultQueue *string
	if t.DefaultQueueID != nil {
		if _, ok := queueIDs[*t.DefaultQueueID]; ok {
			id := *t.DefaultQueueID
			defaultQueue = &id
		}
	}

	ignored := append(append([]string(nil), d.globalIgnored...), normalizeList(t.IgnoredSenders)...)
	return &Snapshot{
		Tenant:    *t,
		Mailboxes: mailboxes,
		Queues:    queues,
		Rules: routing.RuleSet{
			TenantID:       tenantID,
			Rules:          rules,
			DefaultQueueID: defaultQueue,
			QueueIDs:       queueIDs,
		},
		Policies:      policies,
		ignored:       ignored,
		mailboxOwners: owners,
	}, nil
}

func normalizeList(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out = append(out, e)
		}
	}
	return out
}
