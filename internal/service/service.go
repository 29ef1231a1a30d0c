// Package service implements the budget, group, sharing and messaging
// operations on top of a store.Store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
)

const instrumentationName = "gitlab.com/yelinaung/sharedbudget/internal/service"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	cascadeSteps, _ = meter.Int64Counter("sharedbudget.cascade.steps",
		metric.WithDescription("Cascade sub-steps by outcome"))
	reconciliations, _ = meter.Int64Counter("sharedbudget.reconciliations",
		metric.WithDescription("Identity reconciliations by outcome"))
	messagesSent, _ = meter.Int64Counter("sharedbudget.messages.sent",
		metric.WithDescription("Chat messages appended"))
	budgetMutations, _ = meter.Int64Counter("sharedbudget.budget.mutations",
		metric.WithDescription("Budget entry writes by kind"))
)

// Clock returns the current time. Services take one so tests can pin "today".
type Clock func() time.Time

func (c Clock) today() models.Date {
	if c == nil {
		return models.DateOf(time.Now())
	}
	return models.DateOf(c())
}

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// startSpan opens a span named op with the given attributes.
func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

// endSpan records err on the span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// loadGroupAsMember returns the group when uid belongs to it.
func loadGroupAsMember(ctx context.Context, groups store.GroupStore, groupID, uid string) (*models.Group, error) {
	group, err := groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(uid) {
		return nil, fmt.Errorf("%w: group %s", models.ErrNotMember, groupID)
	}
	return group, nil
}

// isClientError tells validation failures apart from store failures so only
// the latter are logged as errors.
func isClientError(err error) bool {
	for _, target := range []error{
		models.ErrNotFound, models.ErrInvalidAmount, models.ErrInsufficientBudget,
		models.ErrNotOwner, models.ErrCannotRemoveOwner, models.ErrAlreadyShared,
		models.ErrNotMember, models.ErrEmptyName, models.ErrEmptyMessage,
		models.ErrInvalidInterval, models.ErrInvalidEntryType, models.ErrInvalidDate, models.ErrInvalidCredentials,
		models.ErrEmailExists, models.ErrWeakPassword, models.ErrPictureTooLarge, models.ErrInvalidPicture,
		models.ErrNotAuthenticated,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

const (
	logFieldUser   = "user_hash"
	logFieldGroup  = "group_id"
	logFieldBudget = "budget_id"
)
