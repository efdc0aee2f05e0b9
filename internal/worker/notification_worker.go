package worker

import (
	"github.com/spec-kit/supporthub/internal/service"
)

// StartNotificationWorker registers the notification and audit event handlers.
func StartNotificationWorker(notificationService *service.NotificationService, auditService *service.AuditService) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if auditService != nil {
		auditService.RegisterHandlers()
	}
}
