package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/audit/masking"
	"github.com/smallbiznis/carebill/internal/clock"
	obscontext "github.com/smallbiznis/carebill/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultBufferSize = 256

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      auditdomain.Repository
}

// Dispatcher queues audit entries and writes them from a single worker so a
// slow or failing sink never delays the operation being audited.
type Dispatcher struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository

	mu      sync.RWMutex
	started bool
	closed  bool
	queue   chan auditdomain.Entry
	done    chan struct{}
}

func NewService(p Params) auditdomain.Service {
	d := NewDispatcher(p, defaultBufferSize)
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				d.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return d.Stop(ctx)
			},
		})
	}
	return d
}

func NewDispatcher(p Params, size int) *Dispatcher {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Dispatcher{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		queue: make(chan auditdomain.Entry, size),
		done:  make(chan struct{}),
	}
}

// Emit enqueues the entry, dropping it with a warning when the queue is full.
func (d *Dispatcher) Emit(ctx context.Context, entry auditdomain.Entry) {
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.Action == "" {
		return
	}
	if entry.ActorType == "" {
		entry.ActorType, entry.ActorID = obscontext.ActorFromContext(ctx)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = d.clock.Now()
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		details := make(map[string]any, len(entry.Details)+1)
		for k, v := range entry.Details {
			details[k] = v
		}
		details["request_id"] = requestID
		entry.Details = details
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- entry:
	default:
		d.log.Warn("audit queue full, entry dropped",
			zap.String("action", entry.Action),
			zap.String("target_type", entry.TargetType),
			zap.String("target_id", entry.TargetID),
		)
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.run()
}

// Stop closes the queue and waits for pending entries to drain.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for entry := range d.queue {
		d.write(entry)
	}
}

func (d *Dispatcher) write(entry auditdomain.Entry) {
	details := masking.MaskDetails(entry.Details)
	var raw datatypes.JSON
	if len(details) > 0 {
		payload, err := json.Marshal(details)
		if err != nil {
			d.log.Warn("audit details not serialisable", zap.String("action", entry.Action), zap.Error(err))
		} else {
			raw = datatypes.JSON(payload)
		}
	}

	row := &auditdomain.AuditLog{
		ID:         d.genID.Generate(),
		Action:     entry.Action,
		ActorType:  entry.ActorType,
		ActorID:    optional(entry.ActorID),
		TargetType: entry.TargetType,
		TargetID:   optional(entry.TargetID),
		Details:    raw,
		CreatedAt:  entry.Timestamp.UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.repo.Insert(ctx, d.db, row); err != nil {
		d.log.Warn("audit write failed", zap.String("action", entry.Action), zap.Error(err))
		return
	}
	d.log.Debug("audit recorded",
		zap.String("action", entry.Action),
		zap.String("target_type", entry.TargetType),
		zap.String("target_id", entry.TargetID),
	)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
