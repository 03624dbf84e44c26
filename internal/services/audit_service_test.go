package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditLogAndList(t *testing.T) {
	db := newTestDB(t)
	audit := mustAudit(t, db)
	org := seedOrg(t, db, "Acme")

	for i := 0; i < 3; i++ {
		_, err := audit.Log(context.Background(), AuditEntry{
			OrganizationID: org.ID,
			Action:         "post.create",
			Resource:       "post",
			Metadata:       map[string]any{"index": i},
		})
		require.NoError(t, err)
	}
	_, err := audit.Log(context.Background(), AuditEntry{
		OrganizationID: org.ID,
		Action:         "member.remove",
		Result:         "failure",
	})
	require.NoError(t, err)

	logs, total, err := audit.List(context.Background(), AuditFilters{OrganizationID: org.ID}, AuditListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, logs, 4)

	logs, total, err = audit.List(context.Background(), AuditFilters{
		OrganizationID: org.ID,
		Action:         "post.create",
	}, AuditListOptions{PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, logs, 2)

	failures, _, err := audit.List(context.Background(), AuditFilters{Result: "failure"}, AuditListOptions{})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.Equal(t, "member.remove", failures[0].Action)
}

func TestAuditLogRequiresAction(t *testing.T) {
	db := newTestDB(t)
	audit := mustAudit(t, db)

	_, err := audit.Log(context.Background(), AuditEntry{})
	require.Error(t, err)
}

func TestAuditExportOrdersOldestFirst(t *testing.T) {
	db := newTestDB(t)
	audit := mustAudit(t, db)
	org := seedOrg(t, db, "Acme")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		audit.now = func() time.Time { return ts }
		_, err := audit.Log(context.Background(), AuditEntry{
			OrganizationID: org.ID,
			Action:         "board.create",
		})
		require.NoError(t, err)
	}

	logs, err := audit.Export(context.Background(), AuditFilters{OrganizationID: org.ID})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.True(t, logs[0].CreatedAt.Before(logs[2].CreatedAt))
}

func TestAuditCleanupOlderThan(t *testing.T) {
	db := newTestDB(t)
	audit := mustAudit(t, db)
	org := seedOrg(t, db, "Acme")

	now := time.Now().UTC()
	audit.now = func() time.Time { return now.AddDate(0, 0, -100) }
	_, err := audit.Log(context.Background(), AuditEntry{OrganizationID: org.ID, Action: "old.event"})
	require.NoError(t, err)

	audit.now = func() time.Time { return now }
	_, err = audit.Log(context.Background(), AuditEntry{OrganizationID: org.ID, Action: "new.event"})
	require.NoError(t, err)

	removed, err := audit.CleanupOlderThan(context.Background(), 30)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	logs, err := audit.Export(context.Background(), AuditFilters{OrganizationID: org.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "new.event", logs[0].Action)

	removed, err = audit.CleanupOlderThan(context.Background(), 0)
	require.NoError(t, err)
	require.Zero(t, removed)
}
