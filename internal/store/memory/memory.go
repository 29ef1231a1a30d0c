// Package memory is an in-process implementation of store.Store. It publishes
// the same change notifications as the PostgreSQL triggers.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"gitlab.com/yelinaung/sharedbudget/internal/changefeed"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

// Store keeps every record in maps guarded by one mutex. Records are copied on
// the way in and out so callers never share memory with the store.
type Store struct {
	mu            sync.RWMutex
	pub           changefeed.Publisher
	users         map[string]*models.User
	groups        map[string]*models.Group
	sharedBudgets map[string]*models.SharedBudget
	groupBudgets  map[string]*models.GroupBudget
	messages      map[string][]*models.Message
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store. pub may be nil.
func New(pub changefeed.Publisher) *Store {
	return &Store{
		pub:           pub,
		users:         make(map[string]*models.User),
		groups:        make(map[string]*models.Group),
		sharedBudgets: make(map[string]*models.SharedBudget),
		groupBudgets:  make(map[string]*models.GroupBudget),
		messages:      make(map[string][]*models.Message),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) publish(topic, key string) {
	if s.pub != nil {
		s.pub.Publish(topic, key)
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
}

// update runs fn on a copy of the record and stores the copy on success.
func update[T any](cur *T, clone func(*T) *T, fn func(*T) error) (*T, bool, error) {
	next := clone(cur)
	if err := fn(next); err != nil {
		if errors.Is(err, store.ErrSkip) {
			return clone(cur), false, nil
		}
		return nil, false, err
	}
	return next, true, nil
}

// CreateUser stores a new user. Email addresses are unique, ignoring case.
func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	for _, u := range s.users {
		if user.Email != "" && strings.EqualFold(u.Email, user.Email) {
			return models.ErrEmailExists
		}
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.users[user.ID] = user.Clone()
	return nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return u.Clone(), nil
}

// GetUserByEmail returns the user registered with email, ignoring case.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u.Clone(), nil
		}
	}
	return nil, notFound("user", email)
}

// GetUsersByPhones returns every user whose phone is in phones.
func (s *Store) GetUsersByPhones(_ context.Context, phones []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, u := range s.users {
		if u.Phone != "" && slices.Contains(phones, u.Phone) {
			out = append(out, *u.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.User) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListUserIDs returns the ids of all users in ascending order.
func (s *Store) ListUserIDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// UpdateUser applies fn to the user atomically.
func (s *Store) UpdateUser(_ context.Context, id string, fn func(*models.User) error) (*models.User, error) {
	s.mu.Lock()
	cur, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return nil, notFound("user", id)
	}
	next, changed, err := update(cur, (*models.User).Clone, fn)
	if err != nil || !changed {
		s.mu.Unlock()
		return next, err
	}
	next.ID = id
	next.UpdatedAt = time.Now()
	s.users[id] = next.Clone()
	s.mu.Unlock()

	s.publish(changefeed.TopicUser, id)
	return next, nil
}

// DeleteUser removes the user.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.users, id)
	s.mu.Unlock()
	s.publish(changefeed.TopicUser, id)
	return nil
}

// CreateGroup stores a new group.
func (s *Store) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; ok {
		return fmt.Errorf("group %s already exists", group.ID)
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	s.groups[group.ID] = group.Clone()
	return nil
}

// GetGroup returns the group with the given id.
func (s *Store) GetGroup(_ context.Context, id string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, notFound("group", id)
	}
	return g.Clone(), nil
}

// GetGroups returns the existing groups among ids, ordered by creation time.
func (s *Store) GetGroups(_ context.Context, ids []string) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Group
	for _, id := range ids {
		if g, ok := s.groups[id]; ok && !slices.ContainsFunc(out, func(o models.Group) bool { return o.ID == id }) {
			out = append(out, *g.Clone())
		}
	}
	sortGroups(out)
	return out, nil
}

// ListGroupsByMember returns the groups listing uid as a member.
func (s *Store) ListGroupsByMember(_ context.Context, uid string) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Group
	for _, g := range s.groups {
		if g.HasMember(uid) {
			out = append(out, *g.Clone())
		}
	}
	sortGroups(out)
	return out, nil
}

func sortGroups(groups []models.Group) {
	slices.SortFunc(groups, func(a, b models.Group) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
}

// UpdateGroup applies fn to the group atomically.
func (s *Store) UpdateGroup(_ context.Context, id string, fn func(*models.Group) error) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.groups[id]
	if !ok {
		return nil, notFound("group", id)
	}
	next, changed, err := update(cur, (*models.Group).Clone, fn)
	if err != nil || !changed {
		return next, err
	}
	next.ID = id
	s.groups[id] = next.Clone()
	return next, nil
}

// DeleteGroup removes the group.
func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	return nil
}

// CreateSharedBudget stores a snapshot unless the (user, group) pair exists.
func (s *Store) CreateSharedBudget(_ context.Context, sb *models.SharedBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sharedBudgets {
		if existing.UserID == sb.UserID && existing.GroupID == sb.GroupID {
			return models.ErrAlreadyShared
		}
	}
	if sb.UpdatedAt.IsZero() {
		sb.UpdatedAt = time.Now()
	}
	s.sharedBudgets[sb.ID] = sb.Clone()
	return nil
}

// GetSharedBudget returns the snapshot with the given id.
func (s *Store) GetSharedBudget(_ context.Context, id string) (*models.SharedBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sb, ok := s.sharedBudgets[id]
	if !ok {
		return nil, notFound("shared budget", id)
	}
	return sb.Clone(), nil
}

// ListSharedBudgetsByGroup returns the snapshots shared with a group.
func (s *Store) ListSharedBudgetsByGroup(_ context.Context, groupID string) ([]models.SharedBudget, error) {
	return s.listSharedBudgets(func(sb *models.SharedBudget) bool { return sb.GroupID == groupID }), nil
}

// ListSharedBudgetsByUser returns the snapshots owned by a user.
func (s *Store) ListSharedBudgetsByUser(_ context.Context, uid string) ([]models.SharedBudget, error) {
	return s.listSharedBudgets(func(sb *models.SharedBudget) bool { return sb.UserID == uid }), nil
}

func (s *Store) listSharedBudgets(match func(*models.SharedBudget) bool) []models.SharedBudget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SharedBudget
	for _, sb := range s.sharedBudgets {
		if match(sb) {
			out = append(out, *sb.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.SharedBudget) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// UpdateSharedBudget applies fn to the snapshot atomically.
func (s *Store) UpdateSharedBudget(_ context.Context, id string, fn func(*models.SharedBudget) error) (*models.SharedBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sharedBudgets[id]
	if !ok {
		return nil, notFound("shared budget", id)
	}
	next, changed, err := update(cur, (*models.SharedBudget).Clone, fn)
	if err != nil || !changed {
		return next, err
	}
	next.ID = id
	next.UpdatedAt = time.Now()
	s.sharedBudgets[id] = next.Clone()
	return next, nil
}

// DeleteSharedBudget removes the snapshot.
func (s *Store) DeleteSharedBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sharedBudgets, id)
	return nil
}

// CreateGroupBudget stores a new group budget.
func (s *Store) CreateGroupBudget(_ context.Context, gb *models.GroupBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gb.CreatedAt.IsZero() {
		gb.CreatedAt = time.Now()
	}
	s.groupBudgets[gb.ID] = gb.Clone()
	return nil
}

// GetGroupBudget returns the group budget with the given id.
func (s *Store) GetGroupBudget(_ context.Context, id string) (*models.GroupBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gb, ok := s.groupBudgets[id]
	if !ok {
		return nil, notFound("group budget", id)
	}
	return gb.Clone(), nil
}

// ListGroupBudgetsByGroup returns the budgets of a group, oldest first.
func (s *Store) ListGroupBudgetsByGroup(_ context.Context, groupID string) ([]models.GroupBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.GroupBudget
	for _, gb := range s.groupBudgets {
		if gb.GroupID == groupID {
			out = append(out, *gb.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.GroupBudget) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// UpdateGroupBudget applies fn to the group budget atomically.
func (s *Store) UpdateGroupBudget(_ context.Context, id string, fn func(*models.GroupBudget) error) (*models.GroupBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.groupBudgets[id]
	if !ok {
		return nil, notFound("group budget", id)
	}
	next, changed, err := update(cur, (*models.GroupBudget).Clone, fn)
	if err != nil || !changed {
		return next, err
	}
	next.ID = id
	s.groupBudgets[id] = next.Clone()
	return next, nil
}

// DeleteGroupBudget removes the group budget.
func (s *Store) DeleteGroupBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupBudgets, id)
	return nil
}

// CreateMessage appends a message to its group's log.
func (s *Store) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.messages[msg.GroupID] = append(s.messages[msg.GroupID], msg.Clone())
	s.mu.Unlock()

	s.publish(changefeed.TopicMessages, msg.GroupID)
	return nil
}

// ListMessages returns a group's messages by ascending timestamp.
func (s *Store) ListMessages(_ context.Context, groupID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(s.messages[groupID]))
	for _, m := range s.messages[groupID] {
		out = append(out, *m.Clone())
	}
	slices.SortStableFunc(out, func(a, b models.Message) int { return a.Timestamp.Compare(b.Timestamp) })
	return out, nil
}

// MarkRead adds uid to readBy of every message of the group that lacks it.
func (s *Store) MarkRead(_ context.Context, groupID, uid string) (int, error) {
	s.mu.Lock()
	n := 0
	for _, m := range s.messages[groupID] {
		if !m.IsReadBy(uid) {
			m.ReadBy = append(m.ReadBy, uid)
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.publish(changefeed.TopicMessages, groupID)
	}
	return n, nil
}

// DeleteMessages drops a group's whole chat log.
func (s *Store) DeleteMessages(_ context.Context, groupID string) (int, error) {
	s.mu.Lock()
	n := len(s.messages[groupID])
	delete(s.messages, groupID)
	s.mu.Unlock()

	if n > 0 {
		s.publish(changefeed.TopicMessages, groupID)
	}
	return n, nil
}
