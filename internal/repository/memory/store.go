// Package memory holds process-local implementations of the repository
// interfaces. They back the development mode and the worker tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/repository"
)

// Store owns every table. The repository views it hands out share one lock so
// multi-table writes stay atomic.
type Store struct {
	mu sync.RWMutex

	now func() time.Time

	tenants   map[string]domain.Tenant
	mailboxes map[string]domain.Mailbox
	queues    map[string]domain.Queue

	tickets   map[string]domain.Ticket
	sequences map[string]int
	messages  map[string][]domain.TicketMessage
	inbound   map[string]domain.InboundMessageRecord
	history   []domain.TicketHistory

	rules    map[string][]domain.RoutingRule
	policies map[string]domain.SlaPolicy
	breaches map[string]domain.SlaBreachRecord
	warnings map[string]domain.SlaWarningRecord
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		now:       func() time.Time { return time.Now().UTC() },
		tenants:   make(map[string]domain.Tenant),
		mailboxes: make(map[string]domain.Mailbox),
		queues:    make(map[string]domain.Queue),
		tickets:   make(map[string]domain.Ticket),
		sequences: make(map[string]int),
		messages:  make(map[string][]domain.TicketMessage),
		inbound:   make(map[string]domain.InboundMessageRecord),
		rules:     make(map[string][]domain.RoutingRule),
		policies:  make(map[string]domain.SlaPolicy),
		breaches:  make(map[string]domain.SlaBreachRecord),
		warnings:  make(map[string]domain.SlaWarningRecord),
	}
}

// SetClock overrides the timestamp source used for generated fields.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Tickets returns the ticket aggregate view.
func (s *Store) Tickets() repository.TicketStore { return ticketView{s} }

// Inbound returns the ingestion log view.
func (s *Store) Inbound() repository.InboundMessageRepository { return inboundView{s} }

// Rules returns the routing rule view.
func (s *Store) Rules() repository.RoutingRuleRepository { return ruleView{s} }

// Policies returns the SLA policy view.
func (s *Store) Policies() repository.SlaPolicyRepository { return policyView{s} }

// SlaRecords returns the breach and warning view.
func (s *Store) SlaRecords() repository.SlaRecordRepository { return slaRecordView{s} }

// Tenants returns the tenant directory view.
func (s *Store) Tenants() repository.TenantRepository { return tenantView{s} }

// History returns the audit history view.
func (s *Store) History() repository.TicketHistoryRepository { return historyView{s} }

// PutTicket stores ticket as-is, keeping its number. It is used for seeding.
func (s *Store) PutTicket(ticket *domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Version == 0 {
		ticket.Version = 1
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.now()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	s.tickets[ticket.ID] = *ticket.Clone()
}

func inboundKey(tenantID, externalID string) string {
	return tenantID + "\x00" + externalID
}

func recordKey(ticketID string, kind domain.BreachKind) string {
	return ticketID + "\x00" + string(kind)
}

type ticketView struct{ s *Store }

func (v ticketView) GetByID(_ context.Context, tenantID, id string) (*domain.Ticket, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	t, ok := v.s.tickets[id]
	if !ok || t.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return t.Clone(), nil
}

func (v ticketView) GetByNumber(_ context.Context, tenantID, number string) (*domain.Ticket, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	for _, t := range v.s.tickets {
		if t.TenantID == tenantID && t.Number == number {
			return t.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (v ticketView) ListOpen(_ context.Context, tenantID string, limit, offset int) ([]domain.Ticket, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var open []domain.Ticket
	for _, t := range v.s.tickets {
		if t.TenantID == tenantID && t.IsOpen() {
			open = append(open, *t.Clone())
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].ID < open[j].ID
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(open) {
		return nil, nil
	}
	open = open[offset:]
	if limit > 0 && limit < len(open) {
		open = open[:limit]
	}
	return open, nil
}

func (v ticketView) Update(_ context.Context, ticket *domain.Ticket) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.updateLocked(ticket)
}

func (v ticketView) CreateFromInbound(_ context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, rec *domain.InboundMessageRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, dup := v.s.inbound[inboundKey(rec.TenantID, rec.ExternalMessageID)]; dup {
		return repository.ErrDuplicateInbound
	}

	now := v.s.now()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = ticket.CreatedAt
	ticket.Version = 1

	seqKey := ticket.TenantID + "\x00" + ticket.CreatedAt.UTC().Format("20060102")
	for {
		v.s.sequences[seqKey]++
		ticket.Number = domain.FormatTicketNumber(ticket.CreatedAt, v.s.sequences[seqKey])
		if !v.s.numberTakenLocked(ticket.TenantID, ticket.Number) {
			break
		}
	}

	v.s.tickets[ticket.ID] = *ticket.Clone()
	v.s.appendMessageLocked(ticket.ID, msg, now)
	rec.TicketID = &ticket.ID
	v.s.insertInboundLocked(rec, now)
	return nil
}

func (v ticketView) AppendInbound(_ context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, rec *domain.InboundMessageRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, dup := v.s.inbound[inboundKey(rec.TenantID, rec.ExternalMessageID)]; dup {
		return repository.ErrDuplicateInbound
	}
	if err := v.s.updateLocked(ticket); err != nil {
		return err
	}
	now := v.s.now()
	v.s.appendMessageLocked(ticket.ID, msg, now)
	rec.TicketID = &ticket.ID
	v.s.insertInboundLocked(rec, now)
	return nil
}

func (v ticketView) ListMessages(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	msgs := v.s.messages[ticketID]
	out := make([]domain.TicketMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Attachments = append([]domain.AttachmentReference(nil), m.Attachments...)
	}
	return out, nil
}

func (s *Store) numberTakenLocked(tenantID, number string) bool {
	for _, existing := range s.tickets {
		if existing.TenantID == tenantID && existing.Number == number {
			return true
		}
	}
	return false
}

func (s *Store) updateLocked(ticket *domain.Ticket) error {
	stored, ok := s.tickets[ticket.ID]
	if !ok || stored.TenantID != ticket.TenantID {
		return repository.ErrNotFound
	}
	if stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	ticket.UpdatedAt = s.now()
	ticket.Number = stored.Number
	ticket.CreatedAt = stored.CreatedAt
	s.tickets[ticket.ID] = *ticket.Clone()
	return nil
}

func (s *Store) appendMessageLocked(ticketID string, msg *domain.TicketMessage, now time.Time) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.TicketID = ticketID
	for i := range msg.Attachments {
		if msg.Attachments[i].ID == "" {
			msg.Attachments[i].ID = uuid.NewString()
		}
		msg.Attachments[i].TicketMessageID = msg.ID
		msg.Attachments[i].CreatedAt = now
	}
	stored := *msg
	stored.Attachments = append([]domain.AttachmentReference(nil), msg.Attachments...)
	s.messages[ticketID] = append(s.messages[ticketID], stored)
}

func (s *Store) insertInboundLocked(rec *domain.InboundMessageRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now
	}
	s.inbound[inboundKey(rec.TenantID, rec.ExternalMessageID)] = *rec
}

type inboundView struct{ s *Store }

func (v inboundView) Exists(_ context.Context, tenantID, externalMessageID string) (bool, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	_, ok := v.s.inbound[inboundKey(tenantID, externalMessageID)]
	return ok, nil
}

func (v inboundView) Record(_ context.Context, rec *domain.InboundMessageRecord) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, dup := v.s.inbound[inboundKey(rec.TenantID, rec.ExternalMessageID)]; dup {
		return false, nil
	}
	v.s.insertInboundLocked(rec, v.s.now())
	return true, nil
}

func (v inboundView) ListRecent(_ context.Context, tenantID string, limit int) ([]domain.InboundMessageRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.InboundMessageRecord
	for _, rec := range v.s.inbound {
		if rec.TenantID == tenantID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ProcessedAt.After(out[j].ProcessedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type ruleView struct{ s *Store }

func (v ruleView) ListByTenant(_ context.Context, tenantID string) ([]domain.RoutingRule, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	rules := append([]domain.RoutingRule(nil), v.s.rules[tenantID]...)
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].SortPosition != rules[j].SortPosition {
			return rules[i].SortPosition < rules[j].SortPosition
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

func (v ruleView) ReplaceForTenant(_ context.Context, tenantID string, rules []domain.RoutingRule) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	seen := make(map[int]struct{}, len(rules))
	now := v.s.now()
	stored := make([]domain.RoutingRule, 0, len(rules))
	for i := range rules {
		if _, dup := seen[rules[i].SortPosition]; dup {
			return repository.ErrDuplicateSortPosition
		}
		seen[rules[i].SortPosition] = struct{}{}
		if rules[i].ID == "" {
			rules[i].ID = uuid.NewString()
		}
		rules[i].TenantID = tenantID
		rules[i].CreatedAt, rules[i].UpdatedAt = now, now
		rule := rules[i]
		rule.AutoAddTags = append([]string(nil), rules[i].AutoAddTags...)
		stored = append(stored, rule)
	}
	v.s.rules[tenantID] = stored
	return nil
}

type policyView struct{ s *Store }

func (v policyView) ListByTenant(_ context.Context, tenantID string) ([]domain.SlaPolicy, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.SlaPolicy
	for _, p := range v.s.policies {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (v policyView) Upsert(_ context.Context, policy *domain.SlaPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := policy.TenantID + "\x00" + string(policy.Priority)
	now := v.s.now()
	if existing, ok := v.s.policies[key]; ok {
		policy.ID = existing.ID
		policy.CreatedAt = existing.CreatedAt
	} else {
		if policy.ID == "" {
			policy.ID = uuid.NewString()
		}
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now
	v.s.policies[key] = *policy
	return nil
}

type slaRecordView struct{ s *Store }

func (v slaRecordView) InsertBreach(_ context.Context, rec *domain.SlaBreachRecord) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := recordKey(rec.TicketID, rec.Kind)
	if _, ok := v.s.breaches[key]; ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = v.s.now()
	}
	v.s.breaches[key] = *rec
	return true, nil
}

func (v slaRecordView) InsertWarning(_ context.Context, rec *domain.SlaWarningRecord) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := recordKey(rec.TicketID, rec.Kind)
	if _, ok := v.s.warnings[key]; ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = v.s.now()
	}
	v.s.warnings[key] = *rec
	return true, nil
}

func (v slaRecordView) ListBreaches(_ context.Context, tenantID, ticketID string) ([]domain.SlaBreachRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.SlaBreachRecord
	for _, rec := range v.s.breaches {
		if rec.TenantID == tenantID && rec.TicketID == ticketID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

type tenantView struct{ s *Store }

func (v tenantView) ListActive(_ context.Context) ([]domain.Tenant, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Tenant
	for _, t := range v.s.tenants {
		if t.Active {
			t.IgnoredSenders = append([]string(nil), t.IgnoredSenders...)
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v tenantView) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	t, ok := v.s.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.IgnoredSenders = append([]string(nil), t.IgnoredSenders...)
	return &t, nil
}

func (v tenantView) Save(_ context.Context, tenant *domain.Tenant) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := v.s.now()
	if existing, ok := v.s.tenants[tenant.ID]; ok {
		tenant.CreatedAt = existing.CreatedAt
	} else {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now
	stored := *tenant
	stored.IgnoredSenders = append([]string(nil), tenant.IgnoredSenders...)
	v.s.tenants[tenant.ID] = stored
	return nil
}

func (v tenantView) ListMailboxes(_ context.Context, tenantID string) ([]domain.Mailbox, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Mailbox
	for _, m := range v.s.mailboxes {
		if m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v tenantView) GetMailbox(_ context.Context, mailboxID string) (*domain.Mailbox, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	m, ok := v.s.mailboxes[mailboxID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (v tenantView) SaveMailbox(_ context.Context, mailbox *domain.Mailbox) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	m := *mailbox
	m.Address = strings.ToLower(strings.TrimSpace(m.Address))
	v.s.mailboxes[m.ID] = m
	return nil
}

func (v tenantView) ListQueues(_ context.Context, tenantID string) ([]domain.Queue, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Queue
	for _, q := range v.s.queues {
		if q.TenantID == tenantID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v tenantView) SaveQueue(_ context.Context, queue *domain.Queue) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.queues[queue.ID] = *queue
	return nil
}

type historyView struct{ s *Store }

func (v historyView) Create(_ context.Context, history *domain.TicketHistory) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.OccurredAt.IsZero() {
		history.OccurredAt = v.s.now()
	}
	v.s.history = append(v.s.history, *history)
	return nil
}

func (v historyView) ListByTicket(_ context.Context, tenantID, ticketID string) ([]domain.TicketHistory, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.TicketHistory
	for _, h := range v.s.history {
		if h.TenantID == tenantID && h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}
