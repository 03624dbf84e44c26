package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/quackback/quackback/internal/auditctx"
	"github.com/quackback/quackback/pkg/logger"
)

// recordAudit logs an audit entry and swallows failures. Audit writes must
// never break the operation being audited. Actor details missing from the
// entry are backfilled from the request context when available.
func recordAudit(ctx context.Context, audit *AuditService, entry AuditEntry) {
	if audit == nil {
		return
	}
	ctx = ensureContext(ctx)
	if actor, ok := auditctx.FromContext(ctx); ok {
		if entry.UserID == nil && actor.UserID != "" {
			id := actor.UserID
			entry.UserID = &id
		}
		if entry.IPAddress == "" {
			entry.IPAddress = actor.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = actor.UserAgent
		}
	}
	if _, err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("failed to record audit entry",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
