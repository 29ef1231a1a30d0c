// Package models defines the domain entities for personal and group budgets.
package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownName is used for members whose display name is not known.
const UnknownName = "Unknown"

// MaxProfilePictureBytes caps the size of a stored base64 profile picture.
const MaxProfilePictureBytes = 512 * 1024

// Interval is the repeat period of a recurring entry.
type Interval string

// Supported recurring intervals.
const (
	IntervalDaily    Interval = "daily"
	IntervalWeekly   Interval = "weekly"
	IntervalBiweekly Interval = "biweekly"
	IntervalMonthly  Interval = "monthly"
	IntervalYearly   Interval = "yearly"
)

// EntryType tells whether a recurring entry adds to or takes from the budget.
type EntryType string

// Recurring entry types.
const (
	EntryTypeIncome  EntryType = "income"
	EntryTypeExpense EntryType = "expense"
)

// MessageTypeText is the only message type currently produced.
const MessageTypeText = "text"

// User is a registered identity together with its personal budget.
type User struct {
	ID                   string           `json:"uid"`
	Name                 string           `json:"name"`
	Phone                string           `json:"phone"`
	Email                string           `json:"email"`
	PasswordHash         string           `json:"-"`
	Income               decimal.Decimal  `json:"income"`
	BudgetTotal          decimal.Decimal  `json:"budgetTotal"`
	RemainingBudget      decimal.Decimal  `json:"remainingBudget"`
	Budget               Budget           `json:"budget"`
	RecurringEntries     []RecurringEntry `json:"recurringEntries"`
	GroupIDs             []string         `json:"groupsId"`
	ProfilePictureBase64 string           `json:"profilePictureBase64,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	c.Budget = u.Budget.Clone()
	c.RecurringEntries = slices.Clone(u.RecurringEntries)
	c.GroupIDs = slices.Clone(u.GroupIDs)
	return &c
}

// AddGroupID appends groupID unless the user already lists it.
func (u *User) AddGroupID(groupID string) bool {
	if slices.Contains(u.GroupIDs, groupID) {
		return false
	}
	u.GroupIDs = append(u.GroupIDs, groupID)
	return true
}

// RemoveGroupID drops groupID from the user's group list.
func (u *User) RemoveGroupID(groupID string) bool {
	n := len(u.GroupIDs)
	u.GroupIDs = slices.DeleteFunc(u.GroupIDs, func(id string) bool { return id == groupID })
	return len(u.GroupIDs) != n
}

// RecurringEntry is a template producing dated instances at a fixed interval.
type RecurringEntry struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Expense   string          `json:"expense"`
	Amount    decimal.Decimal `json:"amount"`
	Interval  Interval        `json:"interval"`
	StartDate Date            `json:"startDate"`
	EndDate   Date            `json:"endDate,omitzero"`
	Type      EntryType       `json:"type"`
}

// Member is the denormalized membership record stored on a group.
type Member struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Group is a set of identities sharing budgets and a chat.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	return &c
}

// HasMember reports whether uid is listed as a member.
func (g *Group) HasMember(uid string) bool {
	return g.MemberIndex(uid) >= 0
}

// MemberIndex returns the position of uid in the member list or -1.
func (g *Group) MemberIndex(uid string) int {
	return slices.IndexFunc(g.Members, func(m Member) bool { return m.UID == uid })
}

// AddMember appends m unless a member with the same uid exists.
func (g *Group) AddMember(m Member) bool {
	if g.HasMember(m.UID) {
		return false
	}
	g.Members = append(g.Members, m)
	return true
}

// RemoveMember drops the member with the given uid.
func (g *Group) RemoveMember(uid string) bool {
	n := len(g.Members)
	g.Members = slices.DeleteFunc(g.Members, func(m Member) bool { return m.UID == uid })
	return len(g.Members) != n
}

// MemberIDs lists the uids of all members in order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UID)
	}
	return ids
}

// SharedBudget is a snapshot of one member's personal budget visible to a group.
type SharedBudget struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserPhone string    `json:"userPhone"`
	GroupID   string    `json:"groupId"`
	Budget    Budget    `json:"budget"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the shared budget.
func (s *SharedBudget) Clone() *SharedBudget {
	c := *s
	c.Budget = s.Budget.Clone()
	return &c
}

// GroupBudget is a budget owned collectively by a group with a hard ceiling.
type GroupBudget struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	GroupID         string          `json:"groupId"`
	OwnerID         string          `json:"ownerId"`
	Budget          Budget          `json:"budget"`
	RemainingBudget decimal.Decimal `json:"remainingBudget"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Clone returns a deep copy of the group budget.
func (b *GroupBudget) Clone() *GroupBudget {
	c := *b
	c.Budget = b.Budget.Clone()
	return &c
}

// Message is one entry of a group's chat log.
type Message struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"groupId"`
	Text       string    `json:"text"`
	Type       string    `json:"type"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
	ReadBy     []string  `json:"readBy"`
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	c.ReadBy = slices.Clone(m.ReadBy)
	return &c
}

// IsReadBy reports whether uid has read the message.
func (m *Message) IsReadBy(uid string) bool {
	return slices.Contains(m.ReadBy, uid)
}

// Contact is a device contact handed to contact matching.
type Contact struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

// ContactMatch pairs a device contact with the registered user owning its number.
type ContactMatch struct {
	ContactID      string `json:"contactId"`
	UID            string `json:"uid"`
	ContactName    string `json:"contactName"`
	RegisteredName string `json:"registeredName"`
	Phone          string `json:"phone"`
}
