// Package session owns a tab's authenticated session: restoring it on start,
// establishing it on login, renewing it on activity, expiring it on inactivity and
// mirroring logins and logouts made in other tabs.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/domain"
	"github.com/fastygo/storefront-session/internal/activity"
	"github.com/fastygo/storefront-session/internal/sessionstore"
	"github.com/fastygo/storefront-session/pkg/clock"
	"github.com/fastygo/storefront-session/repository"
)

// IdentityService exchanges credentials for a token and identity snapshot.
type IdentityService interface {
	Login(ctx context.Context, creds domain.Credentials) (domain.Grant, error)
	Signup(ctx context.Context, profile domain.Profile) (domain.Grant, error)
	CreateAdmin(ctx context.Context, profile domain.Profile) (domain.Grant, error)
}

// Store reads and writes whole records in either slot.
type Store interface {
	Read(ctx context.Context, slot sessionstore.Slot) (domain.Record, bool)
	Write(ctx context.Context, slot sessionstore.Slot, rec domain.Record) error
	Clear(ctx context.Context, slot sessionstore.Slot)
}

// Scheduler runs fn repeatedly until the returned function is called.
type Scheduler interface {
	Schedule(interval time.Duration, fn func()) (cancel func())
}

// Config holds the session lifetimes.
type Config struct {
	IdleTTL       time.Duration
	RememberTTL   time.Duration
	CheckInterval time.Duration
	// StoreTimeout bounds store calls made from timers and activity callbacks.
	StoreTimeout time.Duration
}

// Dependencies are the collaborators of a Manager.
type Dependencies struct {
	Identity  IdentityService
	Store     Store
	Activity  activity.Port
	Scheduler Scheduler
	Clock     clock.Clock
	Logger    *zap.Logger
	// NewSessionID overrides the diagnostic session id generator.
	NewSessionID func(now time.Time) string
}

// Manager is the session lifecycle state machine of one tab. Transitions are
// serialized; the identity-service round trip is the only step run unlocked.
type Manager struct {
	cfg          Config
	identity     IdentityService
	store        Store
	scheduler    Scheduler
	clock        clock.Clock
	logger       *zap.Logger
	tracker      *activity.Tracker
	newSessionID func(time.Time) string

	mu          sync.Mutex
	state       domain.State
	active      sessionstore.Slot
	record      *domain.Record
	loading     int
	cancelCheck func()
	unwatch     func()
	seq         uint64

	notifyMu  sync.Mutex
	published uint64
	subs      map[int]func(domain.Snapshot)
	nextSub   int
}

type versioned struct {
	seq  uint64
	snap domain.Snapshot
}

// New builds a manager in the Unauthenticated state. Call Start to restore a
// persisted session.
func New(cfg Config, deps Dependencies) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = domain.IdleTTL
	}
	if cfg.RememberTTL <= 0 {
		cfg.RememberTTL = domain.RememberTTL
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = newSessionID
	}

	return &Manager{
		cfg:          cfg,
		identity:     deps.Identity,
		store:        deps.Store,
		scheduler:    deps.Scheduler,
		clock:        deps.Clock,
		logger:       deps.Logger,
		tracker:      activity.NewTracker(deps.Activity, deps.Clock),
		newSessionID: deps.NewSessionID,
		state:        domain.StateUnauthenticated,
		subs:         make(map[int]func(domain.Snapshot)),
	}
}

// Start restores a persisted session: the ephemeral slot first, then the durable one.
func (m *Manager) Start(ctx context.Context) domain.Snapshot {
	m.mu.Lock()
	if m.state == domain.StateAuthenticated {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	out := m.restoreLocked(ctx)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(out...)
	return snap
}

// Login authenticates with email and password. rememberMe selects the durable slot.
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe bool) (domain.Snapshot, error) {
	return m.exchange(ctx, "login", rememberMe, func(ctx context.Context) (domain.Grant, error) {
		return m.identity.Login(ctx, domain.Credentials{Email: email, Password: password})
	})
}

// SignupRequest registers a new account.
type SignupRequest struct {
	Name       string
	Email      string
	Password   string
	Role       string
	RememberMe bool
}

// Signup registers an account and signs it in.
func (m *Manager) Signup(ctx context.Context, req SignupRequest) (domain.Snapshot, error) {
	role := req.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	return m.exchange(ctx, "signup", req.RememberMe, func(ctx context.Context) (domain.Grant, error) {
		return m.identity.Signup(ctx, domain.Profile{Name: req.Name, Email: req.Email, Password: req.Password, Role: role})
	})
}

// AdminRequest creates the first administrator.
type AdminRequest struct {
	Name       string
	Email      string
	Password   string
	RememberMe bool
}

// CreateAdmin creates the first administrator account and signs it in.
func (m *Manager) CreateAdmin(ctx context.Context, req AdminRequest) (domain.Snapshot, error) {
	return m.exchange(ctx, "admin creation", req.RememberMe, func(ctx context.Context) (domain.Grant, error) {
		return m.identity.CreateAdmin(ctx, domain.Profile{Name: req.Name, Email: req.Email, Password: req.Password})
	})
}

// Logout clears both slots and stops tracking. Calling it again is a no-op.
func (m *Manager) Logout(ctx context.Context) domain.Snapshot {
	m.mu.Lock()
	var out []versioned
	if m.state != domain.StateUnauthenticated || m.record != nil {
		m.logger.Info("logging out, clearing session", zap.String("session_id", m.sessionIDLocked()))
	}
	m.store.Clear(ctx, sessionstore.Ephemeral)
	m.store.Clear(ctx, sessionstore.Durable)
	m.stopTrackingLocked()
	m.record = nil
	if m.state != domain.StateUnauthenticated {
		out = append(out, m.setStateLocked(domain.StateUnauthenticated))
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(out...)
	return snap
}

// Extend renews the active record as if the user had just interacted.
func (m *Manager) Extend(ctx context.Context) bool {
	m.tracker.Touch()
	m.mu.Lock()
	out, ok := m.extendLocked(ctx)
	m.mu.Unlock()

	m.publish(out...)
	return ok
}

// IsSessionValid reports whether a non-expired record is persisted for this tab.
// A record found past its expiry ends the session.
func (m *Manager) IsSessionValid(ctx context.Context) bool {
	m.mu.Lock()
	now := m.clock.Now()
	var out []versioned
	valid := false
	for _, slot := range []sessionstore.Slot{sessionstore.Ephemeral, sessionstore.Durable} {
		rec, ok := m.store.Read(ctx, slot)
		if !ok {
			continue
		}
		if rec.IsExpired(now) {
			out = m.expireLocked(ctx, "record expired")
		} else {
			valid = true
		}
		break
	}
	m.mu.Unlock()

	m.publish(out...)
	return valid
}

// CheckInactivity runs the periodic expiry check once.
func (m *Manager) CheckInactivity(ctx context.Context) {
	m.mu.Lock()
	out := m.checkLocked(ctx)
	m.mu.Unlock()

	m.publish(out...)
}

// OnExternalChange reacts to a change of the shared durable store made by another tab.
// Only the token key matters: removal mirrors a remote logout, addition while signed
// out mirrors a remote login. Other tabs' writes are never overwritten from here.
func (m *Manager) OnExternalChange(ctx context.Context, key, oldValue, newValue string) {
	if key != sessionstore.KeyToken {
		return
	}

	m.mu.Lock()
	var out []versioned
	switch {
	case newValue == "":
		if m.state == domain.StateUnauthenticated && m.record == nil {
			break
		}
		m.logger.Info("session removed in another tab", zap.String("session_id", m.sessionIDLocked()))
		m.store.Clear(ctx, sessionstore.Ephemeral)
		m.stopTrackingLocked()
		m.record = nil
		out = append(out, m.setStateLocked(domain.StateUnauthenticated))
	case m.state == domain.StateUnauthenticated:
		m.logger.Info("session added in another tab, restoring")
		out = m.restoreLocked(ctx)
	default:
		m.logger.Debug("ignoring external session change", zap.Bool("had_value", oldValue != ""))
	}
	m.mu.Unlock()

	m.publish(out...)
}

// Watch feeds changes of the shared store into OnExternalChange until Close.
func (m *Manager) Watch(ctx context.Context, feed repository.ChangeFeed) error {
	unsubscribe, err := feed.Subscribe(ctx, func(c repository.Change) {
		opCtx, cancel := m.opContext()
		defer cancel()
		m.OnExternalChange(opCtx, c.Key, c.OldValue, c.NewValue)
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	previous := m.unwatch
	m.unwatch = unsubscribe
	m.mu.Unlock()

	if previous != nil {
		previous()
	}
	return nil
}

// Close releases timers, the activity subscription and the change feed. Persisted
// state is left as is so another start can restore it.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopTrackingLocked()
	unwatch := m.unwatch
	m.unwatch = nil
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}

// Current returns the published identity view.
func (m *Manager) Current() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers fn to receive every new snapshot. Callbacks run synchronously
// on the goroutine that made the transition and must not start another transition.
func (m *Manager) Subscribe(fn func(domain.Snapshot)) func() {
	m.notifyMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.notifyMu.Unlock()

	return func() {
		m.notifyMu.Lock()
		delete(m.subs, id)
		m.notifyMu.Unlock()
	}
}

// Tracking reports whether the activity tracker and the periodic check are running.
func (m *Manager) Tracking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCheck != nil || m.tracker.Running()
}

func (m *Manager) exchange(ctx context.Context, op string, rememberMe bool, call func(context.Context) (domain.Grant, error)) (domain.Snapshot, error) {
	m.mu.Lock()
	m.loading++
	pending := m.versionLocked()
	m.mu.Unlock()
	m.publish(pending)

	grant, err := call(ctx)
	if err == nil && grant.Token == "" {
		err = domain.ErrNoToken
	}

	m.mu.Lock()
	m.loading--
	if err != nil {
		m.logger.Warn(op+" failed", zap.Error(err))
		out := m.versionLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.publish(out)
		return snap, err
	}

	now := m.clock.Now()
	rec := domain.Record{
		Token:     grant.Token,
		Identity:  grant.Identity,
		SessionID: m.newSessionID(now),
		ExpiresAt: domain.ExpiryAt(now, rememberMe, m.cfg.IdleTTL, m.cfg.RememberTTL),
		Durable:   rememberMe,
	}
	slot := sessionstore.SlotFor(rememberMe)
	if werr := m.store.Write(ctx, slot, rec); werr != nil {
		out := m.versionLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.publish(out)
		return snap, domain.WrapError(domain.ErrCodeInternal, domain.ErrNotPersisted.Message, werr)
	}
	if slot == sessionstore.Durable {
		m.store.Clear(ctx, sessionstore.Ephemeral)
	}

	out := m.authenticateLocked(slot, rec)
	m.logger.Info(op+" successful",
		zap.String("session_id", rec.SessionID),
		zap.String("role", rec.Identity.Role),
		zap.Stringer("slot", slot))
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publish(out...)
	return snap, nil
}

func (m *Manager) restoreLocked(ctx context.Context) []versioned {
	m.stopTrackingLocked()
	m.record = nil
	m.loading++
	out := []versioned{m.setStateLocked(domain.StateRestoring)}

	now := m.clock.Now()
	var expired []sessionstore.Slot
	for _, slot := range []sessionstore.Slot{sessionstore.Ephemeral, sessionstore.Durable} {
		rec, ok := m.store.Read(ctx, slot)
		if !ok {
			continue
		}
		if rec.IsExpired(now) {
			expired = append(expired, slot)
			continue
		}
		for _, stale := range expired {
			m.store.Clear(ctx, stale)
		}
		m.loading--
		m.logger.Info("session restored", zap.String("session_id", rec.SessionID), zap.Stringer("slot", slot))
		return append(out, m.authenticateLocked(slot, rec)...)
	}

	if len(expired) > 0 {
		m.logger.Info("persisted session expired, clearing")
		m.store.Clear(ctx, sessionstore.Ephemeral)
		m.store.Clear(ctx, sessionstore.Durable)
	}
	m.loading--
	return append(out, m.setStateLocked(domain.StateUnauthenticated))
}

func (m *Manager) authenticateLocked(slot sessionstore.Slot, rec domain.Record) []versioned {
	m.active = slot
	m.record = &rec
	out := []versioned{m.setStateLocked(domain.StateAuthenticated)}

	m.tracker.Start(m.onActivity)
	if m.cancelCheck == nil && m.scheduler != nil {
		m.cancelCheck = m.scheduler.Schedule(m.cfg.CheckInterval, m.onCheck)
	}
	return out
}

func (m *Manager) onActivity() {
	ctx, cancel := m.opContext()
	defer cancel()

	m.mu.Lock()
	out, _ := m.extendLocked(ctx)
	m.mu.Unlock()

	m.publish(out...)
}

func (m *Manager) onCheck() {
	ctx, cancel := m.opContext()
	defer cancel()
	m.CheckInactivity(ctx)
}

// extendLocked pushes the active record's expiry to now+TTL. Expiry never moves back.
func (m *Manager) extendLocked(ctx context.Context) ([]versioned, bool) {
	if m.state != domain.StateAuthenticated {
		return nil, false
	}
	rec, ok := m.store.Read(ctx, m.active)
	now := m.clock.Now()
	if !ok || rec.IsExpired(now) {
		return nil, false
	}

	next := domain.ExpiryAt(now, rec.Durable, m.cfg.IdleTTL, m.cfg.RememberTTL)
	if next <= rec.ExpiresAt {
		m.record = &rec
		return nil, true
	}
	rec.ExpiresAt = next
	if err := m.store.Write(ctx, m.active, rec); err != nil {
		return nil, false
	}
	m.record = &rec
	return []versioned{m.versionLocked()}, true
}

func (m *Manager) checkLocked(ctx context.Context) []versioned {
	if m.state != domain.StateAuthenticated {
		return nil
	}
	now := m.clock.Now()
	rec, ok := m.store.Read(ctx, m.active)
	if !ok {
		// A failed read keeps the session. Removal by another tab arrives as a change.
		if m.record == nil {
			return nil
		}
		rec = *m.record
	}
	switch {
	case rec.IsExpired(now):
		return m.expireLocked(ctx, "record expired")
	case !rec.Durable && now.Sub(m.tracker.LastActivityAt()) > m.cfg.IdleTTL:
		return m.expireLocked(ctx, "inactivity")
	}
	return nil
}

func (m *Manager) expireLocked(ctx context.Context, reason string) []versioned {
	m.logger.Info("session expired",
		zap.String("reason", reason),
		zap.String("session_id", m.sessionIDLocked()))

	out := []versioned{m.setStateLocked(domain.StateExpired)}
	m.store.Clear(ctx, sessionstore.Ephemeral)
	m.store.Clear(ctx, sessionstore.Durable)
	m.stopTrackingLocked()
	m.record = nil
	return append(out, m.setStateLocked(domain.StateUnauthenticated))
}

func (m *Manager) stopTrackingLocked() {
	m.tracker.Stop()
	if m.cancelCheck != nil {
		m.cancelCheck()
		m.cancelCheck = nil
	}
}

func (m *Manager) setStateLocked(state domain.State) versioned {
	m.state = state
	return m.versionLocked()
}

func (m *Manager) versionLocked() versioned {
	m.seq++
	return versioned{seq: m.seq, snap: m.snapshotLocked()}
}

func (m *Manager) snapshotLocked() domain.Snapshot {
	return domain.NewSnapshot(m.state, m.record, m.loading > 0)
}

func (m *Manager) sessionIDLocked() string {
	if m.record == nil {
		return ""
	}
	return m.record.SessionID
}

func (m *Manager) publish(updates ...versioned) {
	if len(updates) == 0 {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	subs := make([]func(domain.Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	for _, u := range updates {
		if u.seq <= m.published {
			continue
		}
		m.published = u.seq
		for _, fn := range subs {
			fn(u.snap)
		}
	}
}

func (m *Manager) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
}

func newSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), random[:9])
}
