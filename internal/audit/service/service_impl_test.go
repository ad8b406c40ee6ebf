package service_test

import (
	"context"
	"encoding/json"
	"testing"

	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	auditrepo "github.com/smallbiznis/carebill/internal/audit/repository"
	"github.com/smallbiznis/carebill/internal/audit/service"
	"github.com/smallbiznis/carebill/internal/clock"
	obscontext "github.com/smallbiznis/carebill/internal/observability/context"
	"github.com/smallbiznis/carebill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newDispatcher(t *testing.T, size int) (*service.Dispatcher, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	d := service.NewDispatcher(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clock.NewFakeClock(testutil.Epoch),
		Repo:  auditrepo.Provide(),
	}, size)
	return d, db
}

func TestDispatcherWritesMaskedEntries(t *testing.T) {
	d, db := newDispatcher(t, 8)
	d.Start()

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithActor(ctx, "staff", "7")
	d.Emit(ctx, auditdomain.Entry{
		Action:     "admission.discharge",
		TargetType: "admission",
		TargetID:   "42",
		Details:    map[string]any{"discharge_notes": "patient_stable", "invoice_number": "CLINIC-202401-0001"},
	})
	d.Emit(ctx, auditdomain.Entry{Action: "  "})
	require.NoError(t, d.Stop(context.Background()))

	var rows []auditdomain.AuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "admission.discharge", row.Action)
	assert.Equal(t, "staff", row.ActorType)
	require.NotNil(t, row.ActorID)
	assert.Equal(t, "7", *row.ActorID)
	assert.True(t, row.CreatedAt.Equal(testutil.Epoch))

	var details map[string]any
	require.NoError(t, json.Unmarshal(row.Details, &details))
	assert.Equal(t, "req-9", details["request_id"])
	assert.Equal(t, "patient_****able", details["discharge_notes"])
	assert.Equal(t, "CLINIC-202401-0001", details["invoice_number"])
}

func TestDispatcherDropsWhenFullAndAfterStop(t *testing.T) {
	d, db := newDispatcher(t, 1)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), auditdomain.Entry{Action: "room.create", TargetType: "room"})
	}
	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	d.Emit(context.Background(), auditdomain.Entry{Action: "room.create", TargetType: "room"})

	var count int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
