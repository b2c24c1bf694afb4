package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventLogin          = "login"
	EventLoginFailed    = "login_failed"
	EventRefresh        = "refresh"
	EventRefreshReuse   = "refresh_reuse"
	EventLogout         = "logout"
	EventRevoked        = "revoked"
	EventRoleChanged    = "role_changed"
	EventPasswordChange = "password_changed"
	EventDeactivated    = "deactivated"
	EventRegistered     = "registered"
)

// Event is one entry in the authentication audit trail.
type Event struct {
	ID         string    `bson:"_id" json:"id"`
	Type       string    `bson:"type" json:"type"`
	IdentityID int64     `bson:"identityId,omitempty" json:"identityId,omitempty"`
	Username   string    `bson:"username,omitempty" json:"username,omitempty"`
	SessionID  string    `bson:"sessionId,omitempty" json:"sessionId,omitempty"`
	Lineage    string    `bson:"lineage,omitempty" json:"lineage,omitempty"`
	Detail     string    `bson:"detail,omitempty" json:"detail,omitempty"`
	At         time.Time `bson:"at" json:"at"`
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Lister reads back events in [from, to).
type Lister interface {
	List(ctx context.Context, from, to time.Time) ([]Event, error)
}

// Stamp fills ID and At when unset.
func Stamp(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// MemoryRecorder keeps events in process.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

func (m *MemoryRecorder) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Stamp(e))
	return nil
}

func (m *MemoryRecorder) List(_ context.Context, from, to time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if !e.At.Before(from) && e.At.Before(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// Types returns the recorded event types in order.
func (m *MemoryRecorder) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}
