// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leseb/docchat-gw/pkg/storage"
	"github.com/leseb/docchat-gw/pkg/usage"
)

// Unlimited marks a quota without a ceiling.
const Unlimited = -1

// Plan is the quota set of a subscription plan.
type Plan struct {
	Name         string
	MaxDocuments int
	MaxMessages  int // per usage window
}

// Plans maps plan names to their quotas.
var Plans = map[string]Plan{
	storage.PlanFree:    {Name: storage.PlanFree, MaxDocuments: 1, MaxMessages: 20},
	storage.PlanStarter: {Name: storage.PlanStarter, MaxDocuments: 10, MaxMessages: 100},
	storage.PlanPremium: {Name: storage.PlanPremium, MaxDocuments: Unlimited, MaxMessages: Unlimited},
}

// Limit kinds reported by LimitError.
const (
	LimitDocuments = "documents"
	LimitMessages  = "messages"
)

// LimitError reports an exhausted quota.
type LimitError struct {
	Kind    string
	Current int
	Max     int
}

func (e *LimitError) Error() string {
	if e.Kind == LimitDocuments {
		suffix := "s"
		if e.Max == 1 {
			suffix = ""
		}
		return fmt.Sprintf("You've reached your limit of %d document%s. Upgrade to Premium for unlimited uploads.", e.Max, suffix)
	}
	return fmt.Sprintf("You've reached your limit of %d messages this month. Upgrade to Premium for unlimited messaging.", e.Max)
}

// UsageStats summarises a user's plan and consumption.
type UsageStats struct {
	Plan               string `json:"plan"`
	IsPremium          bool   `json:"isPremium"`
	IsStarter          bool   `json:"isStarter"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	Documents          struct {
		Current   int  `json:"current"`
		Max       int  `json:"max"`
		CanUpload bool `json:"canUpload"`
	} `json:"documents"`
	Messages struct {
		Current int  `json:"current"`
		Max     int  `json:"max"`
		CanSend bool `json:"canSend"`
	} `json:"messages"`
}

// UsageService enforces per-plan document and message quotas.
type UsageService struct {
	store   storage.Store
	counter usage.Counter
	now     func() time.Time
}

// NewUsageService creates a UsageService.
func NewUsageService(store storage.Store, counter usage.Counter) *UsageService {
	return &UsageService{store: store, counter: counter, now: time.Now}
}

func messageKey(userID string) string {
	return "messages:" + userID
}

// EffectivePlan returns the plan that currently applies to the user. Paid
// plans need an active subscription whose period has not ended; unknown
// users are on the free plan.
func (s *UsageService) EffectivePlan(ctx context.Context, userID string) (Plan, *storage.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Plans[storage.PlanFree], &storage.User{ID: userID, Plan: storage.PlanFree}, nil
	}
	if err != nil {
		return Plan{}, nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	paid := user.SubscriptionStatus == storage.SubscriptionActive &&
		user.CurrentPeriodEnd != nil && user.CurrentPeriodEnd.After(s.now())
	if paid {
		if p, ok := Plans[user.Plan]; ok && user.Plan != storage.PlanFree {
			return p, user, nil
		}
	}
	return Plans[storage.PlanFree], user, nil
}

// CheckDocumentLimit returns a *LimitError when the user cannot add another
// document.
func (s *UsageService) CheckDocumentLimit(ctx context.Context, userID string) error {
	plan, _, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return err
	}
	if plan.MaxDocuments == Unlimited {
		return nil
	}
	n, err := s.store.CountActiveDocuments(ctx, userID)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if n >= plan.MaxDocuments {
		return &LimitError{Kind: LimitDocuments, Current: n, Max: plan.MaxDocuments}
	}
	return nil
}

// CheckMessageLimit returns a *LimitError when the user cannot send another
// message in the current window.
func (s *UsageService) CheckMessageLimit(ctx context.Context, userID string) error {
	plan, _, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return err
	}
	if plan.MaxMessages == Unlimited {
		return nil
	}
	n, err := s.counter.Get(ctx, messageKey(userID))
	if err != nil {
		return fmt.Errorf("read message count: %w", err)
	}
	if int(n) >= plan.MaxMessages {
		return &LimitError{Kind: LimitMessages, Current: int(n), Max: plan.MaxMessages}
	}
	return nil
}

// RecordMessage counts one message against the user's window.
func (s *UsageService) RecordMessage(ctx context.Context, userID string) error {
	if _, err := s.counter.Incr(ctx, messageKey(userID)); err != nil {
		return fmt.Errorf("count message: %w", err)
	}
	return nil
}

// Stats reports the user's plan and quota consumption.
func (s *UsageService) Stats(ctx context.Context, userID string) (*UsageStats, error) {
	plan, user, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.CountActiveDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	msgs, err := s.counter.Get(ctx, messageKey(userID))
	if err != nil {
		return nil, fmt.Errorf("read message count: %w", err)
	}

	st := &UsageStats{
		Plan:               user.Plan,
		IsPremium:          plan.Name == storage.PlanPremium,
		IsStarter:          plan.Name == storage.PlanStarter,
		SubscriptionStatus: user.SubscriptionStatus,
	}
	st.Documents.Current = docs
	st.Documents.Max = plan.MaxDocuments
	st.Documents.CanUpload = plan.MaxDocuments == Unlimited || docs < plan.MaxDocuments
	st.Messages.Current = int(msgs)
	st.Messages.Max = plan.MaxMessages
	st.Messages.CanSend = plan.MaxMessages == Unlimited || int(msgs) < plan.MaxMessages
	return st, nil
}
