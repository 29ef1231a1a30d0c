package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/normalize"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

// errLastMember makes a membership update bail out when removing the member
// would leave the group empty.
var errLastMember = errors.New("last member of the group")

// GroupService creates groups, manages their members and deletes groups and
// identities together with everything that references them.
type GroupService struct {
	store       store.Store
	countryCode string
}

// NewGroupService creates a GroupService. Contact numbers are normalized with
// countryCode.
func NewGroupService(st store.Store, countryCode string) *GroupService {
	return &GroupService{store: st, countryCode: countryCode}
}

// memberFromUser builds the stored member record from the user's own profile.
func memberFromUser(u *models.User) models.Member {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = models.UnknownName
	}
	return models.Member{UID: u.ID, Name: name, Phone: u.Phone}
}

// resolveMembers loads the user behind every requested member, dropping
// duplicates and skip. An unknown uid fails the whole call before any write.
func (s *GroupService) resolveMembers(ctx context.Context, requested []models.Member, skip string) ([]models.Member, error) {
	var out []models.Member
	seen := map[string]bool{skip: true}
	for _, m := range requested {
		uid := strings.TrimSpace(m.UID)
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true

		user, err := s.store.GetUser(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", uid, err)
		}
		out = append(out, memberFromUser(user))
	}
	return out, nil
}

// CreateGroup creates a group owned by ownerUID. The owner is always the first
// member, whatever members holds.
func (s *GroupService) CreateGroup(
	ctx context.Context,
	ownerUID, name string,
	members []models.Member,
) (_ *models.Group, err error) {
	ctx, span := startSpan(ctx, "GroupService.CreateGroup")
	defer func() { endSpan(span, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.ErrEmptyName
	}
	owner, err := s.store.GetUser(ctx, ownerUID)
	if err != nil {
		return nil, err
	}
	others, err := s.resolveMembers(ctx, members, ownerUID)
	if err != nil {
		return nil, err
	}

	group := &models.Group{
		ID:      uuid.NewString(),
		Name:    name,
		Owner:   ownerUID,
		Members: append([]models.Member{memberFromUser(owner)}, others...),
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	result := s.linkMembers(ctx, group.ID, group.MemberIDs())
	if !result.OK() {
		// The group exists; the reconcile loop repairs the member lists.
		logger.Log.Warn().Err(result.Err()).Str(logFieldGroup, group.ID).Msg("Some member group lists were not updated")
	}

	logger.Log.Info().
		Str(logFieldUser, logger.HashUserID(ownerUID)).
		Str(logFieldGroup, group.ID).
		Int("members", len(group.Members)).
		Msg("Group created")
	return group, nil
}

// linkMembers adds groupID to the group list of every uid.
func (s *GroupService) linkMembers(ctx context.Context, groupID string, uids []string) CascadeResult {
	steps := make([]step, 0, len(uids))
	for _, uid := range uids {
		steps = append(steps, step{
			name: "member_list:" + uid,
			run: func(ctx context.Context) error {
				return s.updateGroupList(ctx, uid, func(u *models.User) bool { return u.AddGroupID(groupID) })
			},
		})
	}
	return runCascade(ctx, "link_members", []phase{{name: "member_lists", steps: steps}}, nil)
}

// updateGroupList applies change to the user's group list. A missing user is
// not an error.
func (s *GroupService) updateGroupList(ctx context.Context, uid string, change func(*models.User) bool) error {
	_, err := s.store.UpdateUser(ctx, uid, func(u *models.User) error {
		if !change(u) {
			return store.ErrSkip
		}
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

// MatchContactsToUsers pairs device contacts with registered users by
// normalized phone number. A contact matches on the first of its numbers that
// belongs to a user; contacts without a match are dropped.
func (s *GroupService) MatchContactsToUsers(ctx context.Context, contacts []models.Contact) ([]models.ContactMatch, error) {
	var phones []string
	normalized := make([][]string, len(contacts))
	for i, c := range contacts {
		for _, raw := range c.PhoneNumbers {
			p := normalize.NormalizePhoneNumberWithCode(raw, s.countryCode)
			if p == "" {
				continue
			}
			normalized[i] = append(normalized[i], p)
			phones = append(phones, p)
		}
	}
	if len(phones) == 0 {
		return []models.ContactMatch{}, nil
	}

	users, err := s.store.GetUsersByPhones(ctx, phones)
	if err != nil {
		return nil, fmt.Errorf("failed to look up contacts: %w", err)
	}
	byPhone := make(map[string]*models.User, len(users))
	for i := range users {
		if _, ok := byPhone[users[i].Phone]; !ok {
			byPhone[users[i].Phone] = &users[i]
		}
	}

	matches := []models.ContactMatch{}
	for i, c := range contacts {
		for _, p := range normalized[i] {
			u, ok := byPhone[p]
			if !ok {
				continue
			}
			matches = append(matches, models.ContactMatch{
				ContactID:      c.ID,
				UID:            u.ID,
				ContactName:    c.Name,
				RegisteredName: u.Name,
				Phone:          p,
			})
			break
		}
	}

	logger.Log.Debug().Int("contacts", len(contacts)).Int("matches", len(matches)).Msg("Contacts matched")
	return matches, nil
}

// AddMembers adds users to a group. Only the owner may do this.
func (s *GroupService) AddMembers(ctx context.Context, actor, groupID string, members []models.Member) (*models.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Owner != actor {
		return nil, fmt.Errorf("%w: group %s", models.ErrNotOwner, groupID)
	}
	resolved, err := s.resolveMembers(ctx, members, "")
	if err != nil {
		return nil, err
	}

	var added []string
	group, err = s.store.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		added = added[:0]
		for _, m := range resolved {
			if g.AddMember(m) {
				added = append(added, m.UID)
			}
		}
		if len(added) == 0 {
			return store.ErrSkip
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add members: %w", err)
	}

	if result := s.linkMembers(ctx, groupID, added); !result.OK() {
		logger.Log.Warn().Err(result.Err()).Str(logFieldGroup, groupID).Msg("Some member group lists were not updated")
	}
	return group, nil
}

// RemoveMember takes uid out of the group. The owner can never be removed.
// Members may remove themselves; anyone else needs the owner.
func (s *GroupService) RemoveMember(ctx context.Context, actor, groupID, uid string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if uid == group.Owner {
		return models.ErrCannotRemoveOwner
	}
	if actor != group.Owner && actor != uid {
		return fmt.Errorf("%w: group %s", models.ErrNotOwner, groupID)
	}
	if !group.HasMember(uid) {
		return fmt.Errorf("%w: group %s", models.ErrNotMember, groupID)
	}

	_, err = s.store.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		if uid == g.Owner {
			return models.ErrCannotRemoveOwner
		}
		if !g.RemoveMember(uid) {
			return store.ErrSkip
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	result := runCascade(ctx, "remove_member", []phase{{
		name: "member_copies",
		steps: append(
			s.unshareSteps(ctx, uid, groupID),
			step{name: "member_list:" + uid, run: func(ctx context.Context) error {
				return s.updateGroupList(ctx, uid, func(u *models.User) bool { return u.RemoveGroupID(groupID) })
			}},
		),
	}}, nil)

	logger.Log.Info().
		Str(logFieldUser, logger.HashUserID(uid)).
		Str(logFieldGroup, groupID).
		Msg("Member removed")
	return result.Err()
}

// unshareSteps deletes the snapshots uid shared with groupID.
func (s *GroupService) unshareSteps(ctx context.Context, uid, groupID string) []step {
	shared, err := s.store.ListSharedBudgetsByUser(ctx, uid)
	if err != nil {
		return []step{failedStep("list_shared_budgets", err)}
	}
	var steps []step
	for _, sb := range shared {
		if sb.GroupID != groupID {
			continue
		}
		steps = append(steps, step{name: "shared_budget:" + sb.ID, run: func(ctx context.Context) error {
			return s.store.DeleteSharedBudget(ctx, sb.ID)
		}})
	}
	return steps
}

func failedStep(name string, err error) step {
	return step{name: name, run: func(context.Context) error { return err }}
}

// DeleteGroup deletes a group and everything hanging off it. Only the owner
// may do this. Partial failures are reported in the result; calling again
// retries the remaining steps.
func (s *GroupService) DeleteGroup(ctx context.Context, actor, groupID string) (_ CascadeResult, err error) {
	ctx, span := startSpan(ctx, "GroupService.DeleteGroup", attribute.String(logFieldGroup, groupID))
	defer func() { endSpan(span, err) }()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return CascadeResult{}, err
	}
	if group.Owner != actor {
		return CascadeResult{}, fmt.Errorf("%w: group %s", models.ErrNotOwner, groupID)
	}

	result := s.deleteGroupCascade(ctx, group)
	logger.Log.Info().
		Str(logFieldGroup, groupID).
		Bool("complete", result.OK()).
		Msg("Group deleted")
	return result, nil
}

// deleteGroupCascade removes, in order, the group's budgets, the snapshots
// shared with it, its id from every member's list, its chat and finally the
// group record itself.
func (s *GroupService) deleteGroupCascade(ctx context.Context, group *models.Group) CascadeResult {
	groupID := group.ID

	var budgetSteps []step
	if budgets, err := s.store.ListGroupBudgetsByGroup(ctx, groupID); err != nil {
		budgetSteps = []step{failedStep("list_group_budgets", err)}
	} else {
		for _, gb := range budgets {
			budgetSteps = append(budgetSteps, step{name: "group_budget:" + gb.ID, run: func(ctx context.Context) error {
				return s.store.DeleteGroupBudget(ctx, gb.ID)
			}})
		}
	}

	var sharedSteps []step
	if shared, err := s.store.ListSharedBudgetsByGroup(ctx, groupID); err != nil {
		sharedSteps = []step{failedStep("list_shared_budgets", err)}
	} else {
		for _, sb := range shared {
			sharedSteps = append(sharedSteps, step{name: "shared_budget:" + sb.ID, run: func(ctx context.Context) error {
				return s.store.DeleteSharedBudget(ctx, sb.ID)
			}})
		}
	}

	memberSteps := make([]step, 0, len(group.Members))
	for _, uid := range group.MemberIDs() {
		memberSteps = append(memberSteps, step{name: "member_list:" + uid, run: func(ctx context.Context) error {
			return s.updateGroupList(ctx, uid, func(u *models.User) bool { return u.RemoveGroupID(groupID) })
		}})
	}

	return runCascade(ctx, "delete_group",
		[]phase{
			{name: "group_budgets", steps: budgetSteps},
			{name: "shared_budgets", steps: sharedSteps},
			{name: "member_lists", steps: memberSteps},
			{name: "messages", steps: []step{{name: "messages", run: func(ctx context.Context) error {
				_, err := s.store.DeleteMessages(ctx, groupID)
				return err
			}}}},
		},
		&step{name: "group:" + groupID, run: func(ctx context.Context) error {
			return s.store.DeleteGroup(ctx, groupID)
		}},
	)
}

// DeleteIdentity removes a user from every group, handing ownership to the
// first remaining member and deleting groups the user was alone in, then
// deletes the user's snapshots and finally the user record.
func (s *GroupService) DeleteIdentity(ctx context.Context, uid string) (_ CascadeResult, err error) {
	ctx, span := startSpan(ctx, "GroupService.DeleteIdentity")
	defer func() { endSpan(span, err) }()

	groups, err := s.store.ListGroupsByMember(ctx, uid)
	if err != nil {
		return CascadeResult{}, fmt.Errorf("failed to list groups: %w", err)
	}

	var result CascadeResult
	var leaveSteps []step
	for _, g := range groups {
		if len(g.Members) == 1 {
			result.merge(s.deleteGroupCascade(ctx, &g))
			continue
		}
		leaveSteps = append(leaveSteps, step{name: "leave_group:" + g.ID, run: func(ctx context.Context) error {
			return s.leaveGroup(ctx, g.ID, uid)
		}})
	}

	var sharedSteps []step
	if shared, err := s.store.ListSharedBudgetsByUser(ctx, uid); err != nil {
		sharedSteps = []step{failedStep("list_shared_budgets", err)}
	} else {
		for _, sb := range shared {
			sharedSteps = append(sharedSteps, step{name: "shared_budget:" + sb.ID, run: func(ctx context.Context) error {
				return s.store.DeleteSharedBudget(ctx, sb.ID)
			}})
		}
	}

	phases := []phase{
		{name: "groups", steps: leaveSteps},
		{name: "shared_budgets", steps: sharedSteps},
	}
	final := &step{name: "user:" + uid, run: func(ctx context.Context) error {
		return s.store.DeleteUser(ctx, uid)
	}}

	if result.OK() {
		result.merge(runCascade(ctx, "delete_identity", phases, final))
	} else {
		result.merge(runCascade(ctx, "delete_identity", phases, nil))
		result.record(final.name, ErrStepSkipped)
	}

	logger.Log.Info().
		Str(logFieldUser, logger.HashUserID(uid)).
		Bool("complete", result.OK()).
		Msg("Identity deleted")
	return result, nil
}

// leaveGroup removes uid from a group it shares with others, transferring
// ownership when needed. If uid turns out to be the last member the whole
// group is deleted instead.
func (s *GroupService) leaveGroup(ctx context.Context, groupID, uid string) error {
	group, err := s.store.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		if !g.HasMember(uid) {
			return store.ErrSkip
		}
		if len(g.Members) == 1 {
			return errLastMember
		}
		g.RemoveMember(uid)
		if g.Owner == uid {
			g.Owner = g.Members[0].UID
		}
		return nil
	})
	switch {
	case errors.Is(err, errLastMember):
		group, err := s.store.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		return s.deleteGroupCascade(ctx, group).Err()
	case errors.Is(err, models.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	return s.handOverGroupBudgets(ctx, groupID, group.Owner, uid)
}

// handOverGroupBudgets moves every budget of the group still owned by uid to
// the group owner.
func (s *GroupService) handOverGroupBudgets(ctx context.Context, groupID, owner, uid string) error {
	budgets, err := s.store.ListGroupBudgetsByGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to list group budgets: %w", err)
	}
	for _, gb := range budgets {
		if gb.OwnerID != uid {
			continue
		}
		_, err := s.store.UpdateGroupBudget(ctx, gb.ID, func(b *models.GroupBudget) error {
			if b.OwnerID != uid {
				return store.ErrSkip
			}
			b.OwnerID = owner
			return nil
		})
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to hand over group budget %s: %w", gb.ID, err)
		}
	}
	return nil
}

// ListUserGroups returns the groups uid belongs to.
func (s *GroupService) ListUserGroups(ctx context.Context, uid string) ([]models.Group, error) {
	return s.store.ListGroupsByMember(ctx, uid)
}

// GetGroup returns a group to one of its members.
func (s *GroupService) GetGroup(ctx context.Context, actor, groupID string) (*models.Group, error) {
	return loadGroupAsMember(ctx, s.store, groupID, actor)
}
