package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/result-distribution-api/internal/models"
)

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// recordAudit appends an audit entry for the acting session. Failures are logged, never returned.
func recordAudit(ctx context.Context, repo auditRecorder, logger *zap.Logger, session *models.Session, action, resource, resourceID string, payload interface{}) {
	if repo == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: resource}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if session != nil {
		userID := session.UserID
		entry.UserID = &userID
		entry.IPAddress = session.IPAddress
		entry.UserAgent = session.UserAgent
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.NewValues = raw
		}
	}
	if err := repo.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func actorID(session *models.Session) string {
	if session == nil {
		return ""
	}
	return session.UserID
}
