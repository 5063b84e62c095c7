package session

import (
	"context"
	"fmt"
	"time"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/models"
)

// QuotaPolicy bounds a user's activity: at most DailyActionLimit actions
// in the trailing Window, and at most StorageVolumeLimit volume units in
// the vector store.
type QuotaPolicy struct {
	DailyActionLimit   int
	StorageVolumeLimit float64
	Window             time.Duration
}

func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{
		DailyActionLimit:   30,
		StorageVolumeLimit: 200,
		Window:             24 * time.Hour,
	}
}

// QuotaOK is the pure quota check over an action-count snapshot and the
// user's storage volume.
func (p QuotaPolicy) QuotaOK(actionCount int, volume float64) bool {
	return actionCount <= p.DailyActionLimit && volume <= p.StorageVolumeLimit
}

// SubscriptionOK is the pure subscription check: allow-listed users pass
// unconditionally, everyone else needs an unexpired subscription.
func SubscriptionOK(user *models.User, allowlisted bool, now time.Time) bool {
	return allowlisted || user.HasActiveSubscription(now)
}

// Gate combines the subscription and quota checks. Both are evaluated
// fresh on every action: the quota window slides and a payment can land
// between any two actions.
type Gate struct {
	db        core.DbClient
	policy    QuotaPolicy
	allowlist map[int64]bool
	now       func() time.Time
}

func NewGate(db core.DbClient, policy QuotaPolicy, allowlistIDs []int64, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	allow := make(map[int64]bool, len(allowlistIDs))
	for _, id := range allowlistIDs {
		allow[id] = true
	}
	return &Gate{db: db, policy: policy, allowlist: allow, now: now}
}

// Check returns nil when user may act, core.ErrSubscriptionRequired or
// core.ErrQuotaExceeded otherwise. Rejections short-circuit before any
// side effect.
func (g *Gate) Check(ctx context.Context, user *models.User) error {
	now := g.now()

	if !SubscriptionOK(user, g.allowlist[user.ExternalID], now) {
		return core.ErrSubscriptionRequired
	}

	count, err := g.db.CountActionsSince(ctx, user.ID, now.Add(-g.policy.Window))
	if err != nil {
		return fmt.Errorf("count actions: %w", err)
	}
	if !g.policy.QuotaOK(count, user.StorageVolume) {
		return core.ErrQuotaExceeded
	}
	return nil
}
