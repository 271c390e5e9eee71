package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"transit/internal/domain"
	"transit/internal/repository"
)

var (
	errTransient = errors.New("connection reset by peer")

	// errInvalidUUIDSyntax is what Postgres reports for a malformed uuid key.
	errInvalidUUIDSyntax = errors.New(`pq: invalid input syntax for type uuid: ""`)
)

// ──────────────────────────────────────────────
// MOCK STORE
// ──────────────────────────────────────────────

// mockDB is the shared in-memory state behind a mockStore. Transactions
// run concurrently; GetByIDForUpdate takes a per-trip row lock that is
// held until the enclosing transaction ends. Rollback replays an undo log.
type mockDB struct {
	mu        sync.Mutex
	trips     map[string]*domain.Trip
	userTrips map[string]*domain.UserTrip
	locations map[string]*domain.Location
	users     map[string]*domain.User

	rowLocksMu sync.Mutex
	rowLocks   map[string]*sync.Mutex

	// Counters for verification
	TxCount         int32
	RollbackCount   int32
	TripGetCalls    int32
	TripCreateCalls int32

	// Error injection
	TripGetFailures int32 // Number of upcoming Trips().GetByID calls that fail with errTransient
	TransitionError error

	// ReadLatency delays user trip reads so that racing transactions interleave.
	ReadLatency time.Duration
}

func newMockDB() *mockDB {
	return &mockDB{
		trips:     make(map[string]*domain.Trip),
		userTrips: make(map[string]*domain.UserTrip),
		locations: make(map[string]*domain.Location),
		users:     make(map[string]*domain.User),
		rowLocks:  make(map[string]*sync.Mutex),
	}
}

func (db *mockDB) rowLock(tripID string) *sync.Mutex {
	db.rowLocksMu.Lock()
	defer db.rowLocksMu.Unlock()
	l, ok := db.rowLocks[tripID]
	if !ok {
		l = &sync.Mutex{}
		db.rowLocks[tripID] = l
	}
	return l
}

func (db *mockDB) pause() {
	if db.ReadLatency > 0 {
		time.Sleep(db.ReadLatency)
	}
}

// mockTx tracks the row locks and undo log of one transaction.
type mockTx struct {
	held map[string]*sync.Mutex
	undo []func() // applied in reverse under db.mu
}

func (tx *mockTx) lockTrip(db *mockDB, tripID string) {
	if _, ok := tx.held[tripID]; ok {
		return
	}
	l := db.rowLock(tripID)
	l.Lock()
	tx.held[tripID] = l
}

func (tx *mockTx) release() {
	for _, l := range tx.held {
		l.Unlock()
	}
}

// rememberTrip records the current version of a trip. Callers hold db.mu.
func (tx *mockTx) rememberTrip(db *mockDB, id string) {
	if tx == nil {
		return
	}
	prev, ok := db.trips[id]
	var saved domain.Trip
	if ok {
		saved = *prev
	}
	tx.undo = append(tx.undo, func() {
		if ok {
			db.trips[id] = &saved
		} else {
			delete(db.trips, id)
		}
	})
}

// rememberUserTrip records the current version of a user trip. Callers
// hold db.mu.
func (tx *mockTx) rememberUserTrip(db *mockDB, id string) {
	if tx == nil {
		return
	}
	prev, ok := db.userTrips[id]
	var saved domain.UserTrip
	if ok {
		saved = *prev
	}
	tx.undo = append(tx.undo, func() {
		if ok {
			db.userTrips[id] = &saved
		} else {
			delete(db.userTrips, id)
		}
	})
}

func (tx *mockTx) rollback(db *mockDB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
}

// mockStore implements repository.Store on top of a mockDB.
type mockStore struct {
	db *mockDB
	tx *mockTx
}

func (s *mockStore) Trips() repository.TripRepository {
	return &mockTripRepository{db: s.db, tx: s.tx}
}

func (s *mockStore) UserTrips() repository.UserTripRepository {
	return &mockUserTripRepository{db: s.db, tx: s.tx}
}

func (s *mockStore) Locations() repository.LocationRepository { return &mockLocationRepository{db: s.db} }
func (s *mockStore) Users() repository.UserRepository         { return &mockUserRepository{db: s.db} }

func (s *mockStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	atomic.AddInt32(&s.db.TxCount, 1)
	tx := &mockTx{held: make(map[string]*sync.Mutex)}
	defer tx.release()

	if err := fn(&mockStore{db: s.db, tx: tx}); err != nil {
		atomic.AddInt32(&s.db.RollbackCount, 1)
		tx.rollback(s.db)
		return err
	}
	return nil
}

// AddTrip adds a trip to the mock store.
func (db *mockDB) AddTrip(trip *domain.Trip) {
	db.mu.Lock()
	defer db.mu.Unlock()
	copy := *trip
	db.trips[trip.ID] = &copy
}

// AddUserTrip adds a user trip to the mock store.
func (db *mockDB) AddUserTrip(ut *domain.UserTrip) {
	db.mu.Lock()
	defer db.mu.Unlock()
	copy := *ut
	db.userTrips[ut.ID] = &copy
}

// AddUser adds a user to the mock store.
func (db *mockDB) AddUser(user *domain.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[user.ID] = user
}

// AddLocation adds a location to the mock store.
func (db *mockDB) AddLocation(loc *domain.Location) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.locations[loc.ID] = loc
}

// GetTrip returns a trip for test assertions.
func (db *mockDB) GetTrip(id string) *domain.Trip {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.trips[id]
	if !ok {
		return nil
	}
	copy := *t
	return &copy
}

// GetUserTrip returns a user trip for test assertions.
func (db *mockDB) GetUserTrip(id string) *domain.UserTrip {
	db.mu.Lock()
	defer db.mu.Unlock()
	ut, ok := db.userTrips[id]
	if !ok {
		return nil
	}
	copy := *ut
	return &copy
}

// CountActive returns the number of IN_PROGRESS user trips on a trip.
func (db *mockDB) CountActive(tripID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, ut := range db.userTrips {
		if ut.TripID == tripID && ut.Status == domain.UserTripStatusInProgress {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

type mockTripRepository struct {
	db *mockDB
	tx *mockTx
}

func (r *mockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	atomic.AddInt32(&r.db.TripCreateCalls, 1)
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.trips {
		if t.ReferenceID == trip.ReferenceID {
			return repository.ErrDuplicate
		}
	}
	r.tx.rememberTrip(r.db, trip.ID)
	copy := *trip
	copy.LocationFrom, copy.LocationTo, copy.CreatedBy = nil, nil, nil
	r.db.trips[trip.ID] = &copy
	return nil
}

func (r *mockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	atomic.AddInt32(&r.db.TripGetCalls, 1)
	for {
		n := atomic.LoadInt32(&r.db.TripGetFailures)
		if n <= 0 {
			break
		}
		if atomic.CompareAndSwapInt32(&r.db.TripGetFailures, n, n-1) {
			return nil, errTransient
		}
	}
	return r.get(id)
}

func (r *mockTripRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	if r.tx != nil {
		r.tx.lockTrip(r.db, id)
	}
	return r.get(id)
}

func (r *mockTripRepository) get(id string) (*domain.Trip, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *t
	return &copy, nil
}

func (r *mockTripRepository) GetByReferenceID(ctx context.Context, referenceID string) (*domain.Trip, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.trips {
		if t.ReferenceID == referenceID {
			copy := *t
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *mockTripRepository) ExistsByReferenceID(ctx context.Context, referenceID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.trips {
		if t.ReferenceID == referenceID {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockTripRepository) List(ctx context.Context, filter domain.TripFilter, limit, offset int) ([]*domain.Trip, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var matched []*domain.Trip
	for _, t := range r.db.trips {
		switch {
		case filter.Status != "" && t.Status != filter.Status,
			filter.LocationFromID != "" && t.LocationFromID != filter.LocationFromID,
			filter.LocationToID != "" && t.LocationToID != filter.LocationToID,
			filter.CreatedByID != "" && t.CreatedByID != filter.CreatedByID:
			continue
		}
		copy := *t
		matched = append(matched, &copy)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return []*domain.Trip{}, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (r *mockTripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.trips[trip.ID]; !ok {
		return repository.ErrNotFound
	}
	r.tx.rememberTrip(r.db, trip.ID)
	copy := *trip
	copy.LocationFrom, copy.LocationTo, copy.CreatedBy = nil, nil, nil
	r.db.trips[trip.ID] = &copy
	return nil
}

func (r *mockTripRepository) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.trips[id]; !ok {
		return repository.ErrNotFound
	}
	r.tx.rememberTrip(r.db, id)
	delete(r.db.trips, id)
	return nil
}

// ──────────────────────────────────────────────
// MOCK USER TRIP REPOSITORY
// ──────────────────────────────────────────────

type mockUserTripRepository struct {
	db *mockDB
	tx *mockTx
}

func (r *mockUserTripRepository) Create(ctx context.Context, ut *domain.UserTrip) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.userTrips {
		if existing.TripID == ut.TripID && existing.UserID == ut.UserID &&
			existing.Status == domain.UserTripStatusInProgress && ut.Status == domain.UserTripStatusInProgress {
			return repository.ErrDuplicate
		}
	}
	r.tx.rememberUserTrip(r.db, ut.ID)
	copy := *ut
	r.db.userTrips[ut.ID] = &copy
	return nil
}

func (r *mockUserTripRepository) GetByID(ctx context.Context, id string) (*domain.UserTrip, error) {
	r.db.pause()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ut, ok := r.db.userTrips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *ut
	return &copy, nil
}

func (r *mockUserTripRepository) CountByTrip(ctx context.Context, tripID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, ut := range r.db.userTrips {
		if ut.TripID == tripID {
			n++
		}
	}
	return n, nil
}

func (r *mockUserTripRepository) CountByTripAndStatus(ctx context.Context, tripID string, status domain.UserTripStatus) (int, error) {
	r.db.pause()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, ut := range r.db.userTrips {
		if ut.TripID == tripID && ut.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *mockUserTripRepository) HasActive(ctx context.Context, tripID, userID string) (bool, error) {
	r.db.pause()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, ut := range r.db.userTrips {
		if ut.TripID == tripID && ut.UserID == userID && ut.Status == domain.UserTripStatusInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockUserTripRepository) TransitionByTrip(ctx context.Context, tripID string, from, to domain.UserTripStatus, endTime time.Time) (int64, error) {
	if r.db.TransitionError != nil {
		return 0, r.db.TransitionError
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, ut := range r.db.userTrips {
		if ut.TripID == tripID && ut.Status == from {
			r.tx.rememberUserTrip(r.db, ut.ID)
			ut.Status = to
			ut.EndTime = endTime
			ut.UpdatedAt = endTime
			n++
		}
	}
	return n, nil
}

func (r *mockUserTripRepository) Update(ctx context.Context, ut *domain.UserTrip) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.userTrips[ut.ID]; !ok {
		return repository.ErrNotFound
	}
	r.tx.rememberUserTrip(r.db, ut.ID)
	copy := *ut
	r.db.userTrips[ut.ID] = &copy
	return nil
}

func (r *mockUserTripRepository) List(ctx context.Context, filter domain.UserTripFilter, limit, offset int) ([]*domain.UserTrip, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var matched []*domain.UserTrip
	for _, ut := range r.db.userTrips {
		switch {
		case filter.TripID != "" && ut.TripID != filter.TripID,
			filter.UserID != "" && ut.UserID != filter.UserID,
			filter.Status != "" && ut.Status != filter.Status:
			continue
		}
		copy := *ut
		matched = append(matched, &copy)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if offset >= total {
		return []*domain.UserTrip{}, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

// ──────────────────────────────────────────────
// MOCK LOCATION & USER REPOSITORIES
// ──────────────────────────────────────────────

type mockLocationRepository struct {
	db *mockDB
}

func (r *mockLocationRepository) GetByID(ctx context.Context, id string) (*domain.Location, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, errInvalidUUIDSyntax
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	loc, ok := r.db.locations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return loc, nil
}

type mockUserRepository struct {
	db *mockDB
}

func (r *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

// ──────────────────────────────────────────────
// MOCK AUDIT REPOSITORY
// ──────────────────────────────────────────────

type mockAuditRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog

	// Error injection
	CreateError error
}

func (r *mockAuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	if r.CreateError != nil {
		return r.CreateError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns the recorded audit entries.
func (r *mockAuditRepository) Entries() []*domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.AuditLog(nil), r.entries...)
}

// ──────────────────────────────────────────────
// MOCK CAPACITY CACHE
// ──────────────────────────────────────────────

type mockCapacityCache struct {
	mu         sync.Mutex
	capacities map[string]domain.Capacity
	versions   map[string]int64

	// Counters for verification
	HitCount        int32
	InvalidateCount int32

	// Error injection
	GetError error

	// BeforeSet runs at the start of every SetCapacity call.
	BeforeSet func()
}

func newMockCapacityCache() *mockCapacityCache {
	return &mockCapacityCache{
		capacities: make(map[string]domain.Capacity),
		versions:   make(map[string]int64),
	}
}

func (c *mockCapacityCache) GetCapacity(ctx context.Context, tripID string) (*domain.Capacity, error) {
	if c.GetError != nil {
		return nil, c.GetError
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	capacity, ok := c.capacities[tripID]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&c.HitCount, 1)
	return &capacity, nil
}

func (c *mockCapacityCache) CapacityVersion(ctx context.Context, tripID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[tripID], nil
}

func (c *mockCapacityCache) SetCapacity(ctx context.Context, tripID string, capacity *domain.Capacity, version int64) error {
	if c.BeforeSet != nil {
		c.BeforeSet()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[tripID] != version {
		return nil
	}
	c.capacities[tripID] = *capacity
	return nil
}

func (c *mockCapacityCache) InvalidateCapacity(ctx context.Context, tripID string) error {
	atomic.AddInt32(&c.InvalidateCount, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[tripID]++
	delete(c.capacities, tripID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK EVENT PUBLISHER
// ──────────────────────────────────────────────

type mockPublisher struct {
	mu   sync.Mutex
	keys []string

	// Error injection
	PublishError error
}

func (p *mockPublisher) PublishJSON(ctx context.Context, routingKey string, payload any) error {
	if p.PublishError != nil {
		return p.PublishError
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

// RoutingKeys returns the routing keys published so far.
func (p *mockPublisher) RoutingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// ──────────────────────────────────────────────
// FIXTURES
// ──────────────────────────────────────────────

var (
	testStart     = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	noRetry       = RetryPolicy{MaxAttempts: 1}
	fastRetry     = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	testCreatorID = "6f1c2b8e-8d4a-4a57-9c55-0a3c4f1e2d10"
	testFromID    = "0b6e8f5a-1c2d-4e3f-8a9b-1c2d3e4f5a60"
	testToID      = "9d8c7b6a-5f4e-4d3c-8b2a-1f0e9d8c7b60"
)

// fakeClock returns a time that moves forward one second per call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type testEnv struct {
	db        *mockDB
	store     *mockStore
	audit     *mockAuditRepository
	cache     *mockCapacityCache
	publisher *mockPublisher
	clock     *fakeClock
	svc       *TripService
}

type envOption func(*envConfig)

type envConfig struct {
	allowPendingJoin bool
	retry            RetryPolicy
	log              *zap.Logger
}

func withPendingJoin() envOption {
	return func(c *envConfig) { c.allowPendingJoin = true }
}

func withRetry(p RetryPolicy) envOption {
	return func(c *envConfig) { c.retry = p }
}

// newTestEnv wires a TripService over fresh mocks, seeded with one
// creator and two locations.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{retry: noRetry, log: zaptest.NewLogger(t)}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := newMockDB()
	db.AddUser(&domain.User{ID: testCreatorID, Name: "Dispatcher", Email: "dispatch@example.com"})
	db.AddLocation(&domain.Location{ID: testFromID, Name: "Central Station"})
	db.AddLocation(&domain.Location{ID: testToID, Name: "Airport"})

	env := &testEnv{
		db:        db,
		store:     &mockStore{db: db},
		audit:     &mockAuditRepository{},
		cache:     newMockCapacityCache(),
		publisher: &mockPublisher{},
		clock:     &fakeClock{now: testStart},
	}

	capacity := NewCapacityCalculator(env.store, env.cache, cfg.retry, cfg.log)
	stateMachine := NewTripStateMachine(env.store, cfg.log)
	stateMachine.now = env.clock.Now
	reservations := NewReservationManager(env.store, cfg.allowPendingJoin, cfg.retry, cfg.log)
	reservations.now = env.clock.Now
	audit := NewAuditRecorder(env.audit, cfg.log)
	audit.now = env.clock.Now
	notifications := NewNotificationService(env.publisher, cfg.log)

	env.svc = NewTripService(env.store, stateMachine, reservations, capacity, audit, notifications, cfg.retry, cfg.log)
	env.svc.now = env.clock.Now

	return env
}

// seedTrip stores a trip in the given status and returns its ID.
func (e *testEnv) seedTrip(status domain.TripStatus, capacity int) string {
	id := uuid.NewString()
	trip := &domain.Trip{
		ID:             id,
		ReferenceID:    RandomReference(),
		Status:         status,
		TotalCapacity:  capacity,
		LocationFromID: testFromID,
		CreatedByID:    testCreatorID,
		CreatedAt:      testStart,
		UpdatedAt:      testStart,
	}
	if status != domain.TripStatusPending {
		trip.StartTime = testStart
	}
	e.db.AddTrip(trip)
	return id
}

// seedUser stores a new passenger and returns its ID.
func (e *testEnv) seedUser() string {
	id := uuid.NewString()
	e.db.AddUser(&domain.User{ID: id, Name: "Passenger " + id[:8]})
	return id
}

// seedPassengers seats n new passengers directly in the store.
func (e *testEnv) seedPassengers(tripID string, n int) []string {
	ids := make([]string, 0, n)
	for range n {
		ut := &domain.UserTrip{
			ID:        uuid.NewString(),
			TripID:    tripID,
			UserID:    e.seedUser(),
			Status:    domain.UserTripStatusInProgress,
			StartTime: testStart,
			CreatedAt: testStart,
			UpdatedAt: testStart,
		}
		e.db.AddUserTrip(ut)
		ids = append(ids, ut.ID)
	}
	return ids
}
