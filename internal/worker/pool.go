package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/supporthub/internal/domain"
)

// TenantLister lists the tenants a run covers.
type TenantLister interface {
	ActiveTenants(ctx context.Context) ([]domain.Tenant, error)
}

// forEachTenant runs fn for every active tenant with at most concurrency tenants
// in flight. A failing or panicking tenant never affects the others; its error is
// returned in the list as "tenant: message".
func forEachTenant(ctx context.Context, lister TenantLister, concurrency int, logger *zap.Logger, fn func(context.Context, domain.Tenant) error) (int, []string) {
	tenants, err := lister.ActiveTenants(ctx)
	if err != nil {
		logger.Error("list active tenants", zap.Error(err))
		return 0, []string{fmt.Sprintf("list tenants: %v", err)}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu   sync.Mutex
		errs []string
		g    errgroup.Group
	)
	slots := make(chan struct{}, concurrency)
	report := func(tenantID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, fmt.Sprintf("%s: %v", tenantID, err))
	}

	started := 0
	for _, t := range tenants {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			report(t.ID, ctx.Err())
			continue
		}
		started++
		t := t
		g.Go(func() (err error) {
			defer func() { <-slots }()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("tenant panic",
						zap.String("tenant_id", t.ID),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()))
					report(t.ID, fmt.Errorf("panic: %v", r))
				}
			}()
			if err := fn(ctx, t); err != nil {
				logger.Warn("tenant run failed", zap.String("tenant_id", t.ID), zap.Error(err))
				report(t.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return started, errs
}
