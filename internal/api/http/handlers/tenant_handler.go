package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/supporthub/internal/api/dto"
	"github.com/spec-kit/supporthub/internal/domain"
	"github.com/spec-kit/supporthub/internal/service"
	"github.com/spec-kit/supporthub/internal/sla"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

// TenantHandler serves tenant-scoped administration and SLA queries.
type TenantHandler struct {
	routing *service.RoutingService
	sla     *service.SlaService
}

// NewTenantHandler constructs handler.
func NewTenantHandler(routingService *service.RoutingService, slaService *service.SlaService) *TenantHandler {
	return &TenantHandler{routing: routingService, sla: slaService}
}

// ListRules GET /tenants/:tenantId/rules.
func (h *TenantHandler) ListRules(c *fiber.Ctx) error {
	rules, err := h.routing.ListRules(c.UserContext(), c.Params("tenantId"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": ruleResponses(rules)})
}

// ReplaceRules PUT /tenants/:tenantId/rules.
func (h *TenantHandler) ReplaceRules(c *fiber.Ctx) error {
	var req dto.ReplaceRulesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rules := make([]domain.RoutingRule, 0, len(req.Rules))
	for _, r := range req.Rules {
		active := true
		if r.Active != nil {
			active = *r.Active
		}
		rules = append(rules, domain.RoutingRule{
			Name:              strings.TrimSpace(r.Name),
			MatchType:         r.MatchType,
			Operator:          r.Operator,
			Value:             r.Value,
			SortPosition:      r.SortPosition,
			QueueID:           r.QueueID,
			AutoAssignAgentID: r.AutoAssignAgentID,
			AutoSetPriority:   r.AutoSetPriority,
			AutoAddTags:       r.AutoAddTags,
			Active:            active,
		})
	}
	saved, err := h.routing.ReplaceRules(c.UserContext(), c.Params("tenantId"), rules)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponses(saved)})
}

// ListPolicies GET /tenants/:tenantId/sla-policies.
func (h *TenantHandler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.sla.ListPolicies(c.UserContext(), c.Params("tenantId"))
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.SlaPolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpsertPolicy PUT /tenants/:tenantId/sla-policies/:priority.
func (h *TenantHandler) UpsertPolicy(c *fiber.Ctx) error {
	var req dto.SlaPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy := &domain.SlaPolicy{
		TenantID:             c.Params("tenantId"),
		Priority:             domain.TicketPriority(strings.ToUpper(c.Params("priority"))),
		FirstResponseMinutes: req.FirstResponseMinutes,
		ResolutionMinutes:    req.ResolutionMinutes,
	}
	if err := h.sla.UpsertPolicy(c.UserContext(), policy); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// TicketSla GET /tenants/:tenantId/tickets/:number/sla.
func (h *TenantHandler) TicketSla(c *fiber.Ctx) error {
	result, err := h.sla.TicketStatus(c.UserContext(), c.Params("tenantId"), c.Params("number"))
	if err != nil {
		return err
	}
	breaches := make([]dto.SlaBreachResponse, 0, len(result.Breaches))
	for _, b := range result.Breaches {
		breaches = append(breaches, dto.SlaBreachResponse{Kind: b.Kind, DetectedAt: b.DetectedAt})
	}
	return c.JSON(fiber.Map{"data": dto.TicketSlaResponse{
		TicketID:      result.Ticket.ID,
		Number:        result.Ticket.Number,
		Status:        result.Ticket.Status,
		Priority:      result.Ticket.Priority,
		HasPolicy:     result.Status.HasPolicy,
		Worst:         string(result.Status.Worst()),
		FirstResponse: clockResponse(result.Status.FirstResponse),
		Resolution:    clockResponse(result.Status.Resolution),
		Breaches:      breaches,
		EvaluatedAt:   result.Status.EvaluatedAt,
	}})
}

func ruleResponses(rules []domain.RoutingRule) []dto.RoutingRuleResponse {
	items := make([]dto.RoutingRuleResponse, 0, len(rules))
	for _, r := range rules {
		tags := r.AutoAddTags
		if tags == nil {
			tags = []string{}
		}
		items = append(items, dto.RoutingRuleResponse{
			ID:                r.ID,
			Name:              r.Name,
			MatchType:         r.MatchType,
			Operator:          r.Operator,
			Value:             r.Value,
			SortPosition:      r.SortPosition,
			QueueID:           r.QueueID,
			AutoAssignAgentID: r.AutoAssignAgentID,
			AutoSetPriority:   r.AutoSetPriority,
			AutoAddTags:       tags,
			Active:            r.Active,
			UpdatedAt:         r.UpdatedAt,
		})
	}
	return items
}

func policyResponse(p *domain.SlaPolicy) dto.SlaPolicyResponse {
	return dto.SlaPolicyResponse{
		ID:                   p.ID,
		Priority:             p.Priority,
		FirstResponseMinutes: p.FirstResponseMinutes,
		ResolutionMinutes:    p.ResolutionMinutes,
		UpdatedAt:            p.UpdatedAt,
	}
}

func clockResponse(clock sla.ClockStatus) dto.SlaClockResponse {
	return dto.SlaClockResponse{
		Kind:             clock.Kind,
		Tier:             string(clock.Tier),
		TargetMinutes:    int(clock.Target.Minutes()),
		ElapsedMinutes:   int(clock.Elapsed.Minutes()),
		MinutesRemaining: clock.MinutesRemaining(),
		PercentRemaining: clock.PercentRemaining,
		MetAt:            clock.MetAt,
	}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
