package domain

import "time"

// Tenant is an isolated customer organization.
type Tenant struct {
	ID             string
	Name           string
	Active         bool
	DefaultQueueID *string
	IgnoredSenders []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Mailbox is an external inbox polled on behalf of a tenant.
type Mailbox struct {
	ID       string
	TenantID string
	Address  string
	Active   bool
}

// Queue is a routing destination owned by a tenant.
type Queue struct {
	ID       string
	TenantID string
	Name     string
}
