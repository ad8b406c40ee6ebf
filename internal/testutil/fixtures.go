package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	directorydomain "github.com/smallbiznis/carebill/internal/directory/domain"
	"github.com/smallbiznis/carebill/internal/events"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Epoch is the fixed instant test clocks start from.
var Epoch = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func CreatePatient(t *testing.T, db *gorm.DB, node *snowflake.Node, status string) directorydomain.Patient {
	t.Helper()
	patient := directorydomain.Patient{
		ID:        node.Generate(),
		Name:      "Test Patient",
		Email:     "patient@example.test",
		Status:    status,
		CreatedAt: Epoch,
	}
	require.NoError(t, db.Create(&patient).Error)
	return patient
}

func CreateStaff(t *testing.T, db *gorm.DB, node *snowflake.Node, role, status string) directorydomain.Staff {
	t.Helper()
	staff := directorydomain.Staff{
		ID:        node.Generate(),
		Name:      "Test Staff",
		Email:     "staff@example.test",
		Role:      role,
		Status:    status,
		CreatedAt: Epoch,
	}
	require.NoError(t, db.Create(&staff).Error)
	return staff
}

// RecordingAudit keeps emitted entries in memory.
type RecordingAudit struct {
	mu      sync.Mutex
	entries []auditdomain.Entry
}

func (a *RecordingAudit) Emit(_ context.Context, entry auditdomain.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *RecordingAudit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
