// Package synchronizer keeps a local list of user records and a form draft in
// step with a remote users collection.
//
// A Synchronizer is either idle or busy. Refresh, Save and Remove move it to
// busy for the lifetime of their request; a second call while busy fails with
// ErrBusy and leaves the state alone. Local state only changes when a request
// succeeds, so a failed request leaves the list exactly as it was and records
// the failure in the status.
package synchronizer

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/samandartukhtayev/user-sync/models"
)

// DefaultSuccessTTL is how long a success message stays visible
const DefaultSuccessTTL = 3 * time.Second

const (
	msgCreated = "User created"
	msgUpdated = "User updated"
	msgDeleted = "User deleted"
)

// UserService is the remote collection the Synchronizer reconciles against.
// *Client implements it.
type UserService interface {
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, in models.UserInput) (models.User, error)
	Update(ctx context.Context, id string, in models.UserInput) (models.User, error)
	Delete(ctx context.Context, id string) error
}

// Status is a snapshot of the transient operation flags
type Status struct {
	Busy    bool
	Error   string
	Success string
}

// Synchronizer owns the local user list, the draft and the status flags
type Synchronizer struct {
	service    UserService
	clock      clock.PassiveClock
	successTTL time.Duration

	mu        sync.Mutex
	users     []models.User
	draft     models.Draft
	busy      bool
	errMsg    string
	successAt time.Time
	success   string
	saved     models.User
	hasSaved  bool
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithClock sets the clock used to expire success messages
func WithClock(c clock.PassiveClock) Option {
	return func(s *Synchronizer) { s.clock = c }
}

// WithSuccessTTL sets how long a success message stays visible
func WithSuccessTTL(ttl time.Duration) Option {
	return func(s *Synchronizer) { s.successTTL = ttl }
}

// New creates an idle Synchronizer with an empty list and a create-mode draft
func New(service UserService, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		service:    service,
		clock:      clock.RealClock{},
		successTTL: DefaultSuccessTTL,
		users:      []models.User{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh replaces the local list with the server's collection. A record id
// the server repeats is kept once, at its first position.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	logger := klog.FromContext(ctx)

	if err := s.begin(); err != nil {
		return err
	}

	users, err := s.service.List(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		s.errMsg = err.Error()
		logger.Error(err, "Refresh failed")
		return err
	}

	s.users = dedupe(users)
	logger.V(2).Info("Refreshed users", "count", len(s.users))
	return nil
}

// Save creates or updates a record from the draft. A draft without an edit
// reference creates; otherwise the referenced record is updated. The draft
// becomes the current one; on success the local list is reconciled with the
// server's record and the draft resets, on failure it stays for a retry.
func (s *Synchronizer) Save(ctx context.Context, draft models.Draft) error {
	logger := klog.FromContext(ctx)
	in := draft.Input()

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.clearStatus()
	s.draft = draft
	if err := validate(in); err != nil {
		s.errMsg = err.Error()
		s.mu.Unlock()
		logger.V(2).Info("Draft rejected", "err", err)
		return err
	}
	s.busy = true
	s.mu.Unlock()

	var (
		user models.User
		err  error
	)
	if draft.Editing() {
		user, err = s.service.Update(ctx, draft.EditID, in)
	} else {
		user, err = s.service.Create(ctx, in)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		s.errMsg = err.Error()
		logger.Error(err, "Save failed", "editID", draft.EditID)
		return err
	}

	if draft.Editing() {
		s.replace(draft.EditID, user)
		s.succeed(msgUpdated)
	} else {
		s.upsert(user)
		s.succeed(msgCreated)
	}
	s.draft = models.Draft{}
	s.saved, s.hasSaved = user, true

	logger.V(2).Info("Saved user", "id", user.ID, "updated", draft.Editing())
	return nil
}

// Remove deletes the record with the given id. The caller is responsible for
// having obtained the user's confirmation first.
func (s *Synchronizer) Remove(ctx context.Context, id string) error {
	logger := klog.FromContext(ctx)

	if err := s.begin(); err != nil {
		return err
	}

	err := s.service.Delete(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		s.errMsg = err.Error()
		logger.Error(err, "Remove failed", "id", id)
		return err
	}

	s.users = slices.DeleteFunc(s.users, func(u models.User) bool { return u.ID == id })
	s.succeed(msgDeleted)

	logger.V(2).Info("Removed user", "id", id)
	return nil
}

// BeginEdit loads a record from the local list into the draft
func (s *Synchronizer) BeginEdit(record models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(record.ID) < 0 {
		return ErrUnknownRecord
	}

	s.draft = models.Draft{
		Username: record.Username,
		Age:      record.Age,
		Location: record.Location,
		EditID:   record.ID,
	}
	s.clearStatus()
	return nil
}

// CancelEdit resets the draft to create mode and clears the error message
func (s *Synchronizer) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft = models.Draft{}
	s.errMsg = ""
}

// Users returns a copy of the local list
func (s *Synchronizer) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.users)
}

// Draft returns the current draft
func (s *Synchronizer) Draft() models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.draft
}

// LastSaved returns the record the server returned for the most recent
// successful Save
func (s *Synchronizer) LastSaved() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saved, s.hasSaved
}

// Busy reports whether a request is outstanding
func (s *Synchronizer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.busy
}

// Status returns the current flags; a success message older than the TTL is dropped
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Busy: s.busy, Error: s.errMsg}
	if s.success != "" && s.clock.Since(s.successAt) < s.successTTL {
		st.Success = s.success
	}
	return st
}

// begin moves an idle Synchronizer to busy and clears the previous messages
func (s *Synchronizer) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrBusy
	}
	s.busy = true
	s.clearStatus()
	return nil
}

func (s *Synchronizer) clearStatus() {
	s.errMsg = ""
	s.success = ""
	s.successAt = time.Time{}
}

func (s *Synchronizer) succeed(msg string) {
	s.success = msg
	s.successAt = s.clock.Now()
}

func (s *Synchronizer) indexOf(id string) int {
	return slices.IndexFunc(s.users, func(u models.User) bool { return u.ID == id })
}

// replace swaps the entry for id in place; a record deleted meanwhile stays gone
func (s *Synchronizer) replace(id string, user models.User) {
	if i := s.indexOf(id); i >= 0 {
		s.users[i] = user
	}
}

// upsert appends a new record, or replaces it if the id is already listed
func (s *Synchronizer) upsert(user models.User) {
	if i := s.indexOf(user.ID); i >= 0 {
		s.users[i] = user
		return
	}
	s.users = append(s.users, user)
}

func dedupe(users []models.User) []models.User {
	out := make([]models.User, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

func validate(in models.UserInput) error {
	var missing []string
	if in.Username == "" {
		missing = append(missing, "username")
	}
	if in.Age <= 0 {
		missing = append(missing, "age")
	}
	if in.Location == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// IsValidation reports whether err was raised by the local draft checks
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
