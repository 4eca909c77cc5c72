package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

// AutomationService exposes the trigger catalogue.
type AutomationService struct {
	store  port.CRMStore
	logger *zap.Logger
}

// NewAutomationService creates the service.
func NewAutomationService(store port.CRMStore, logger *zap.Logger) *AutomationService {
	return &AutomationService{store: store, logger: logger}
}

// Triggers lists the tenant's catalogue, seeding it on first access.
func (s *AutomationService) Triggers(ctx context.Context, sess domain.Session) ([]domain.AutomationTrigger, error) {
	return s.store.ListTriggers(ctx, sess.TenantID)
}

// Toggle flips one trigger.
func (s *AutomationService) Toggle(ctx context.Context, sess domain.Session, triggerID string) (*domain.AutomationTrigger, error) {
	t, err := s.store.ToggleTrigger(ctx, sess.TenantID, triggerID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("automation trigger toggled",
		zap.String("tenant_id", sess.TenantID),
		zap.String("trigger_id", t.ID),
		zap.Bool("active", t.Active),
		zap.String("user_id", sess.UserID),
	)
	return t, nil
}
