package views

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrViewNotFound = errors.New("view not found")
	ErrTooManyViews = errors.New("too many mounted views")
)

// Synchronizer is what a mounted view runs.
type Synchronizer interface {
	Start()
	Snapshot(ctx context.Context) (telemetry.Snapshot, error)
	SnapshotTo(ctx context.Context, deliver func(telemetry.Snapshot)) error
	Toggle(ctx context.Context, kind device.Kind) (telemetry.ActuatorSnapshot, error)
	Reload(ctx context.Context) error
	Close(ctx context.Context) error
}

// Factory builds the synchronizer of a new view. observer must receive
// every event of that view.
type Factory func(pondID int, session *auth.Session, observer func(telemetry.Event)) Synchronizer

// Sink receives view events, e.g. the websocket hub.
type Sink interface {
	Publish(viewID uuid.UUID, e telemetry.Event)
	CloseView(viewID uuid.UUID)
}

type View struct {
	ID        uuid.UUID `json:"id"`
	PondID    int       `json:"pond_id"`
	Owner     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`

	sync Synchronizer
}

func (v *View) Sync() Synchronizer { return v.sync }

// Manager owns every mounted view.
type Manager struct {
	factory  Factory
	sink     Sink
	maxViews int
	views    map[uuid.UUID]*View
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a registry. maxViews <= 0 means no limit.
func NewManager(factory Factory, sink Sink, maxViews int, logger *zap.Logger) *Manager {
	return &Manager{
		factory:  factory,
		sink:     sink,
		maxViews: maxViews,
		views:    make(map[uuid.UUID]*View),
		logger:   logger,
	}
}

// Mount starts a synchronizer for pondID on behalf of session.
func (m *Manager) Mount(pondID int, session *auth.Session) (*View, error) {
	m.mu.Lock()
	if m.maxViews > 0 && len(m.views) >= m.maxViews {
		m.mu.Unlock()
		return nil, ErrTooManyViews
	}

	id := uuid.New()
	view := &View{
		ID:        id,
		PondID:    pondID,
		Owner:     session.Owner(),
		CreatedAt: time.Now(),
	}
	view.sync = m.factory(pondID, session, func(e telemetry.Event) {
		if m.sink != nil {
			m.sink.Publish(id, e)
		}
	})
	m.views[id] = view
	m.mu.Unlock()

	view.sync.Start()

	m.logger.Info("View mounted",
		zap.String("view_id", id.String()),
		zap.Int("pond_id", pondID))

	return view, nil
}

// Get returns a view owned by owner. Views of other users are reported as
// not found.
func (m *Manager) Get(id uuid.UUID, owner string) (*View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	view, ok := m.views[id]
	if !ok || view.Owner != owner {
		return nil, ErrViewNotFound
	}
	return view, nil
}

// Unmount stops a view and forgets it.
func (m *Manager) Unmount(ctx context.Context, id uuid.UUID, owner string) error {
	m.mu.Lock()
	view, ok := m.views[id]
	if !ok || view.Owner != owner {
		m.mu.Unlock()
		return ErrViewNotFound
	}
	delete(m.views, id)
	m.mu.Unlock()

	return m.stop(ctx, view)
}

// UnmountPond stops every view of a deleted pond.
func (m *Manager) UnmountPond(ctx context.Context, pondID int) int {
	m.mu.Lock()
	var stale []*View
	for id, view := range m.views {
		if view.PondID == pondID {
			stale = append(stale, view)
			delete(m.views, id)
		}
	}
	m.mu.Unlock()

	for _, view := range stale {
		if err := m.stop(ctx, view); err != nil {
			m.logger.Warn("Failed to stop view", zap.String("view_id", view.ID.String()), zap.Error(err))
		}
	}
	return len(stale)
}

func (m *Manager) stop(ctx context.Context, view *View) error {
	if m.sink != nil {
		m.sink.CloseView(view.ID)
	}
	if err := view.sync.Close(ctx); err != nil {
		return fmt.Errorf("failed to close view %s: %w", view.ID, err)
	}

	m.logger.Info("View unmounted",
		zap.String("view_id", view.ID.String()),
		zap.Int("pond_id", view.PondID))
	return nil
}

// List returns the views of owner, oldest first.
func (m *Manager) List(owner string) []*View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]*View, 0)
	for _, view := range m.views {
		if view.Owner == owner {
			views = append(views, view)
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	return views
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// StopAll closes every view.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	views := make([]*View, 0, len(m.views))
	for _, view := range m.views {
		views = append(views, view)
	}
	m.views = make(map[uuid.UUID]*View)
	m.mu.Unlock()

	var errs []error
	for _, view := range views {
		if err := m.stop(ctx, view); err != nil {
			errs = append(errs, err)
		}
	}

	m.logger.Info("All views stopped", zap.Int("count", len(views)))
	return errors.Join(errs...)
}
