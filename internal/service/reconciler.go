package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"gitlab.com/yelinaung/sharedbudget/internal/changefeed"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

// ReconcileTimeout bounds one pass over a single user's copies.
const ReconcileTimeout = 2 * time.Minute

// IdentityChange carries the identity fields that changed. Nil fields are
// left alone.
type IdentityChange struct {
	Name  *string
	Phone *string
}

// desiredCopy is what every denormalized copy of a user should hold.
type desiredCopy struct {
	name   *string
	phone  *string
	budget models.Budget // nil leaves snapshot budgets alone
	// groupList rewrites the user's own group list from group membership.
	groupList bool
}

// Reconciler keeps shared budget snapshots and group member records in line
// with the user records they were copied from. Every pass is idempotent.
type Reconciler struct {
	store store.Store
	feed  changefeed.Subscriber
}

// NewReconciler creates a Reconciler. feed may be nil when StartSync is unused.
func NewReconciler(st store.Store, feed changefeed.Subscriber) *Reconciler {
	return &Reconciler{store: st, feed: feed}
}

// PropagateIdentityChange writes a new name or phone into every shared budget
// and group member record of uid.
func (r *Reconciler) PropagateIdentityChange(ctx context.Context, uid string, change IdentityChange) CascadeResult {
	ctx, span := startSpan(ctx, "Reconciler.PropagateIdentityChange")
	result := r.apply(ctx, uid, desiredCopy{name: change.Name, phone: change.Phone})
	endSpan(span, result.Err())
	return result
}

// Reconcile reads the user and brings every copy up to date: identity fields
// in member records, identity fields and budget in shared snapshots.
func (r *Reconciler) Reconcile(ctx context.Context, uid string) (CascadeResult, error) {
	ctx, span := startSpan(ctx, "Reconciler.Reconcile")
	user, err := r.store.GetUser(ctx, uid)
	if err != nil {
		endSpan(span, err)
		return CascadeResult{}, err
	}
	result := r.apply(ctx, uid, desiredCopy{
		name:      &user.Name,
		phone:     &user.Phone,
		budget:    user.Budget,
		groupList: true,
	})
	endSpan(span, result.Err())

	outcome := "ok"
	if !result.OK() {
		outcome = "failed"
	}
	reconciliations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, uid string, want desiredCopy) CascadeResult {
	var result CascadeResult
	var steps []step

	shared, err := r.store.ListSharedBudgetsByUser(ctx, uid)
	if err != nil {
		result.record("list_shared_budgets", err)
	}
	for _, sb := range shared {
		steps = append(steps, step{
			name: "shared_budget:" + sb.ID,
			run: func(ctx context.Context) error {
				return r.syncSharedBudget(ctx, sb.ID, want)
			},
		})
	}

	groups, err := r.store.ListGroupsByMember(ctx, uid)
	if err != nil {
		result.record("list_groups", err)
	} else if want.groupList {
		memberOf := make([]string, 0, len(groups))
		for _, g := range groups {
			memberOf = append(memberOf, g.ID)
		}
		steps = append(steps, step{
			name: "group_list",
			run: func(ctx context.Context) error {
				return r.syncGroupList(ctx, uid, memberOf)
			},
		})
	}
	for _, g := range groups {
		steps = append(steps, step{
			name: "group_member:" + g.ID,
			run: func(ctx context.Context) error {
				return r.syncMember(ctx, g.ID, uid, want)
			},
		})
	}

	result.merge(runCascade(ctx, "reconcile", []phase{{name: "copies", steps: steps}}, nil))
	return result
}

func (r *Reconciler) syncSharedBudget(ctx context.Context, id string, want desiredCopy) error {
	_, err := r.store.UpdateSharedBudget(ctx, id, func(sb *models.SharedBudget) error {
		changed := false
		if want.name != nil && sb.UserName != *want.name {
			sb.UserName = *want.name
			changed = true
		}
		if want.phone != nil && sb.UserPhone != *want.phone {
			sb.UserPhone = *want.phone
			changed = true
		}
		if want.budget != nil && !sb.Budget.Equal(want.budget) {
			sb.Budget = want.budget.Clone()
			changed = true
		}
		if !changed {
			return store.ErrSkip
		}
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		// Unshared in the meantime.
		return nil
	}
	return err
}

func (r *Reconciler) syncMember(ctx context.Context, groupID, uid string, want desiredCopy) error {
	_, err := r.store.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		i := g.MemberIndex(uid)
		if i < 0 {
			return store.ErrSkip
		}
		m := &g.Members[i]
		changed := false
		if want.name != nil && m.Name != *want.name {
			m.Name = *want.name
			changed = true
		}
		if want.phone != nil && m.Phone != *want.phone {
			m.Phone = *want.phone
			changed = true
		}
		if !changed {
			return store.ErrSkip
		}
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

func (r *Reconciler) syncGroupList(ctx context.Context, uid string, memberOf []string) error {
	_, err := r.store.UpdateUser(ctx, uid, func(u *models.User) error {
		next, changed := mergeGroupIDs(u.GroupIDs, memberOf)
		if !changed {
			return store.ErrSkip
		}
		u.GroupIDs = next
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

// mergeGroupIDs returns the ids of have that are still in want, in their
// original order, followed by the ids of want that have lacks.
func mergeGroupIDs(have, want []string) ([]string, bool) {
	next := make([]string, 0, len(want))
	for _, id := range have {
		if slices.Contains(want, id) && !slices.Contains(next, id) {
			next = append(next, id)
		}
	}
	for _, id := range want {
		if !slices.Contains(next, id) {
			next = append(next, id)
		}
	}
	return next, !slices.Equal(have, next)
}

// SyncHandle keeps one user's copies reconciled while it is running.
type SyncHandle struct {
	uid    string
	sub    *changefeed.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartSync subscribes to changes of uid's record and reconciles after each
// one, starting with an immediate pass. Stop the handle on sign-out.
func (r *Reconciler) StartSync(ctx context.Context, uid string) (*SyncHandle, error) {
	if r.feed == nil {
		return nil, errors.New("reconciler has no change feed")
	}
	if uid == "" {
		return nil, models.ErrNotAuthenticated
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &SyncHandle{
		uid:    uid,
		sub:    r.feed.Subscribe(changefeed.TopicUser, uid),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.run(ctx, r)

	logger.Log.Debug().Str(logFieldUser, logger.HashUserID(uid)).Msg("Budget sync started")
	return h, nil
}

func (h *SyncHandle) run(ctx context.Context, r *Reconciler) {
	defer close(h.done)

	h.reconcile(ctx, r)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.sub.C:
			h.reconcile(ctx, r)
		}
	}
}

func (h *SyncHandle) reconcile(ctx context.Context, r *Reconciler) {
	passCtx, cancel := context.WithTimeout(ctx, ReconcileTimeout)
	defer cancel()

	result, err := r.Reconcile(passCtx, h.uid)
	switch {
	case errors.Is(err, models.ErrNotFound):
		// The user is gone; the deletion cascade owns the copies now.
	case err != nil:
		logger.Log.Error().Err(err).Str(logFieldUser, logger.HashUserID(h.uid)).Msg("Budget sync failed")
	case !result.OK():
		logger.Log.Warn().Err(result.Err()).Str(logFieldUser, logger.HashUserID(h.uid)).Msg("Budget sync incomplete")
	}
}

// UserID returns the user the handle syncs.
func (h *SyncHandle) UserID() string {
	return h.uid
}

// Done is closed once the handle has fully stopped.
func (h *SyncHandle) Done() <-chan struct{} {
	return h.done
}

// Stop ends the subscription and waits for a running pass to finish. It is
// safe to call more than once.
func (h *SyncHandle) Stop() {
	h.once.Do(func() {
		h.cancel()
		h.sub.Stop()
		<-h.done
		logger.Log.Debug().Str(logFieldUser, logger.HashUserID(h.uid)).Msg("Budget sync stopped")
	})
}

// ReconcileAll runs Reconcile for every user and reports how many passes left
// copies behind.
func (r *Reconciler) ReconcileAll(ctx context.Context) (users, incomplete int, err error) {
	ids, err := r.store.ListUserIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list users: %w", err)
	}
	for _, uid := range ids {
		if ctx.Err() != nil {
			return users, incomplete, ctx.Err()
		}
		passCtx, cancel := context.WithTimeout(ctx, ReconcileTimeout)
		result, err := r.Reconcile(passCtx, uid)
		cancel()
		users++
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			incomplete++
			continue
		}
		if !result.OK() {
			incomplete++
		}
	}
	return users, incomplete, nil
}

// RunReconcileLoop calls ReconcileAll immediately and then every interval
// until ctx is cancelled. It catches changes made while no SyncHandle was
// listening. A non-positive interval disables the loop.
func (r *Reconciler) RunReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logger.Log.Info().Msg("Reconcile loop is disabled")
		return
	}

	logger.Log.Info().Dur("interval", interval).Msg("Reconcile loop started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.reconcileAllAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("Reconcile loop stopped")
			return
		case <-ticker.C:
			r.reconcileAllAndLog(ctx)
		}
	}
}

func (r *Reconciler) reconcileAllAndLog(ctx context.Context) {
	users, incomplete, err := r.ReconcileAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Log.Error().Err(err).Msg("Reconcile pass failed")
		}
		return
	}
	event := logger.Log.Info()
	if incomplete > 0 {
		event = logger.Log.Warn()
	}
	event.Int("users", users).Int("incomplete", incomplete).Msg("Reconcile pass finished")
}
