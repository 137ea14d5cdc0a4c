// Package paymenttest provides in-memory doubles for the payment ledger
// store and the gateway.
package paymenttest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/payment"
)

// Hooks inject failures into the memory store.
type Hooks struct {
	FailIncrementCourse  error
	FailCreateEnrollment error
	FailMarkWebhook      error
}

type pair struct{ user, course uint }

type store struct {
	nextID      uint
	users       map[uint]models.User
	courses     map[uint]models.Course
	intents     map[uint]models.PaymentIntent
	transitions []models.PaymentTransition
	enrollments map[pair]models.Enrollment
	events      map[string]models.PaymentWebhookEvent
}

func newStore() *store {
	return &store{
		users:       map[uint]models.User{},
		courses:     map[uint]models.Course{},
		intents:     map[uint]models.PaymentIntent{},
		enrollments: map[pair]models.Enrollment{},
		events:      map[string]models.PaymentWebhookEvent{},
	}
}

func (s *store) clone() *store {
	c := newStore()
	c.nextID = s.nextID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.courses {
		c.courses[k] = v
	}
	for k, v := range s.intents {
		c.intents[k] = v
	}
	c.transitions = append([]models.PaymentTransition(nil), s.transitions...)
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

func (s *store) id() uint {
	s.nextID++
	return s.nextID
}

type memDB struct {
	mu     sync.Mutex
	data   *store
	hooks  Hooks
	writes int
}

// MemoryRepository implements payment.Repository. Transactions are fully
// serialized and roll back to a snapshot on error, which makes it behave
// like a serializable database for concurrency tests.
type MemoryRepository struct {
	db   *memDB
	inTx bool
}

var _ payment.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{db: &memDB{data: newStore()}}
}

func (r *MemoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.db.mu.Lock()
	return r.db.mu.Unlock
}

// SetHooks replaces the failure hooks.
func (r *MemoryRepository) SetHooks(h Hooks) {
	defer r.lock()()
	r.db.hooks = h
}

func (r *MemoryRepository) Transaction(ctx context.Context, fn func(tx payment.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	snapshot := r.db.data.clone()
	if err := fn(&MemoryRepository{db: r.db, inTx: true}); err != nil {
		r.db.data = snapshot
		return err
	}
	return nil
}

func (r *MemoryRepository) LockUser(ctx context.Context, userID uint) (*models.User, error) {
	defer r.lock()()
	u, ok := r.db.data.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) GetCourse(ctx context.Context, courseID uint) (*models.Course, error) {
	defer r.lock()()
	c, ok := r.db.data.courses[courseID]
	if !ok || c.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) GetCourseUnscoped(ctx context.Context, courseID uint) (*models.Course, error) {
	defer r.lock()()
	c, ok := r.db.data.courses[courseID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) IncrementCourseStudents(ctx context.Context, courseID uint) error {
	defer r.lock()()
	if r.db.hooks.FailIncrementCourse != nil {
		return r.db.hooks.FailIncrementCourse
	}
	c, ok := r.db.data.courses[courseID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Students++
	r.db.data.courses[courseID] = c
	r.db.writes++
	return nil
}

func (r *MemoryRepository) FindInFlightIntent(ctx context.Context, userID, courseID uint) (*models.PaymentIntent, error) {
	defer r.lock()()
	for _, id := range r.sortedIntentIDs() {
		p := r.db.data.intents[id]
		if p.UserID == userID && p.CourseID == courseID && p.IsInFlight() {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) CreateIntent(ctx context.Context, intent *models.PaymentIntent, tr *models.PaymentTransition) error {
	defer r.lock()()
	for _, p := range r.db.data.intents {
		if p.RemoteOrderID == intent.RemoteOrderID {
			return gorm.ErrDuplicatedKey
		}
	}
	now := time.Now()
	intent.ID = r.db.data.id()
	intent.CreatedAt, intent.UpdatedAt = now, now
	r.db.data.intents[intent.ID] = *intent
	tr.ID = r.db.data.id()
	tr.PaymentIntentID = intent.ID
	tr.CreatedAt = now
	r.db.data.transitions = append(r.db.data.transitions, *tr)
	r.db.writes++
	return nil
}

func (r *MemoryRepository) GetIntentByRemoteOrderID(ctx context.Context, remoteOrderID string, forUpdate bool) (*models.PaymentIntent, error) {
	defer r.lock()()
	for _, p := range r.db.data.intents {
		if p.RemoteOrderID == remoteOrderID {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) ApplyTransition(ctx context.Context, intent *models.PaymentIntent, tr *models.PaymentTransition) error {
	if err := payment.CheckTransition(tr); err != nil {
		return err
	}
	defer r.lock()()
	stored, ok := r.db.data.intents[intent.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Status != tr.FromStatus {
		return payment.ErrStaleStatus
	}
	intent.UpdatedAt = time.Now()
	r.db.data.intents[intent.ID] = *intent
	tr.ID = r.db.data.id()
	tr.PaymentIntentID = intent.ID
	tr.CreatedAt = intent.UpdatedAt
	r.db.data.transitions = append(r.db.data.transitions, *tr)
	r.db.writes++
	return nil
}

func (r *MemoryRepository) ListIntentsByUser(ctx context.Context, userID uint, limit int) ([]models.PaymentIntent, error) {
	defer r.lock()()
	ids := r.sortedIntentIDs()
	out := []models.PaymentIntent{}
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		if p := r.db.data.intents[ids[i]]; p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListTransitions(ctx context.Context, intentID uint) ([]models.PaymentTransition, error) {
	defer r.lock()()
	out := []models.PaymentTransition{}
	for _, tr := range r.db.data.transitions {
		if tr.PaymentIntentID == intentID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListCompletedWithoutEnrollment(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	defer r.lock()()
	out := []models.PaymentIntent{}
	for _, id := range r.sortedIntentIDs() {
		if len(out) >= limit {
			break
		}
		p := r.db.data.intents[id]
		if p.Status != models.PaymentStatusCompleted {
			continue
		}
		if _, ok := r.db.data.enrollments[pair{p.UserID, p.CourseID}]; !ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) GetEnrollment(ctx context.Context, userID, courseID uint) (*models.Enrollment, error) {
	defer r.lock()()
	e, ok := r.db.data.enrollments[pair{userID, courseID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) CreateEnrollmentIfNotExists(ctx context.Context, e *models.Enrollment) (bool, *models.Enrollment, error) {
	defer r.lock()()
	if r.db.hooks.FailCreateEnrollment != nil {
		return false, nil, r.db.hooks.FailCreateEnrollment
	}
	key := pair{e.UserID, e.CourseID}
	if existing, ok := r.db.data.enrollments[key]; ok {
		return false, &existing, nil
	}
	now := time.Now()
	e.ID = r.db.data.id()
	e.CreatedAt, e.UpdatedAt = now, now
	r.db.data.enrollments[key] = *e
	r.db.writes++
	stored := *e
	return true, &stored, nil
}

func (r *MemoryRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	defer r.lock()()
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := r.db.data.events[key]; ok {
		return false, &existing, nil
	}
	now := time.Now()
	event.ID = r.db.data.id()
	event.CreatedAt, event.UpdatedAt = now, now
	r.db.data.events[key] = *event
	r.db.writes++
	stored := *event
	return true, &stored, nil
}

func (r *MemoryRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	defer r.lock()()
	if r.db.hooks.FailMarkWebhook != nil {
		return r.db.hooks.FailMarkWebhook
	}
	for k, ev := range r.db.data.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			r.db.data.events[k] = ev
			r.db.writes++
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *MemoryRepository) sortedIntentIDs() []uint {
	ids := make([]uint, 0, len(r.db.data.intents))
	for id := range r.db.data.intents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Seeding and inspection helpers.

func (r *MemoryRepository) AddUser(u models.User) models.User {
	defer r.lock()()
	if u.ID == 0 {
		u.ID = r.db.data.id()
	} else if u.ID > r.db.data.nextID {
		r.db.data.nextID = u.ID
	}
	if u.Status == "" {
		u.Status = models.STATUS_ACTIVE
	}
	r.db.data.users[u.ID] = u
	return u
}

func (r *MemoryRepository) AddCourse(c models.Course) models.Course {
	defer r.lock()()
	if c.ID == 0 {
		c.ID = r.db.data.id()
	} else if c.ID > r.db.data.nextID {
		r.db.data.nextID = c.ID
	}
	if c.Currency == "" {
		c.Currency = "INR"
	}
	r.db.data.courses[c.ID] = c
	return c
}

// SoftDeleteCourse marks a course deleted the way gorm's soft delete does.
func (r *MemoryRepository) SoftDeleteCourse(id uint) {
	defer r.lock()()
	c, ok := r.db.data.courses[id]
	if !ok {
		return
	}
	c.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	r.db.data.courses[id] = c
}

// RemoveCourse drops a course row entirely.
func (r *MemoryRepository) RemoveCourse(id uint) {
	defer r.lock()()
	delete(r.db.data.courses, id)
}

// AddEnrollment inserts an enrollment directly, like an admin grant.
func (r *MemoryRepository) AddEnrollment(e models.Enrollment) (models.Enrollment, error) {
	defer r.lock()()
	key := pair{e.UserID, e.CourseID}
	if _, ok := r.db.data.enrollments[key]; ok {
		return models.Enrollment{}, gorm.ErrDuplicatedKey
	}
	e.ID = r.db.data.id()
	if e.Status == "" {
		e.Status = models.EnrollmentStatusActive
	}
	r.db.data.enrollments[key] = e
	return e, nil
}

// ForceIntentStatus overwrites an intent's status without a transition, to
// simulate crash leftovers.
func (r *MemoryRepository) ForceIntentStatus(remoteOrderID, status string) error {
	defer r.lock()()
	for id, p := range r.db.data.intents {
		if p.RemoteOrderID == remoteOrderID {
			p.Status = status
			r.db.data.intents[id] = p
			return nil
		}
	}
	return errors.New("intent not found")
}

func (r *MemoryRepository) Intents() []models.PaymentIntent {
	defer r.lock()()
	out := make([]models.PaymentIntent, 0, len(r.db.data.intents))
	for _, id := range r.sortedIntentIDs() {
		out = append(out, r.db.data.intents[id])
	}
	return out
}

func (r *MemoryRepository) Enrollments() []models.Enrollment {
	defer r.lock()()
	out := make([]models.Enrollment, 0, len(r.db.data.enrollments))
	for _, e := range r.db.data.enrollments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryRepository) Course(id uint) models.Course {
	defer r.lock()()
	return r.db.data.courses[id]
}

func (r *MemoryRepository) Transitions() []models.PaymentTransition {
	defer r.lock()()
	return append([]models.PaymentTransition(nil), r.db.data.transitions...)
}

func (r *MemoryRepository) WebhookEvents() []models.PaymentWebhookEvent {
	defer r.lock()()
	out := make([]models.PaymentWebhookEvent, 0, len(r.db.data.events))
	for _, ev := range r.db.data.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Writes counts mutating calls that reached the store, including ones later
// rolled back.
func (r *MemoryRepository) Writes() int {
	defer r.lock()()
	return r.db.writes
}
