package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiagenz/billing/internal/domain"
)

func TestGuardService_Check(t *testing.T) {
	tests := []struct {
		name        string
		freeTrial   int
		entitlement string // "", "limited", "unlimited", "missing"
		userLimit   int
		wantAllowed bool
		wantTag     domain.UsageTag
		wantReason  string
		wantErrKind domain.ErrorKind
	}{
		{name: "free trial wins", freeTrial: 2, entitlement: "limited", userLimit: 0, wantAllowed: true, wantTag: domain.TagFreeTrial},
		{name: "no trial no entitlement", wantReason: domain.ReasonNoEntitlement},
		{name: "dangling entitlement", entitlement: "missing", wantErrKind: domain.KindNotFound},
		{name: "unlimited", entitlement: "unlimited", wantAllowed: true, wantTag: domain.TagEntitlementUnlimited},
		{name: "limited exhausted", entitlement: "limited", userLimit: 0, wantReason: domain.ReasonLimitExceeded},
		{name: "limited with quota", entitlement: "limited", userLimit: 3, wantAllowed: true, wantTag: domain.TagEntitlementLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			var entID string
			switch tt.entitlement {
			case "limited":
				entID = env.seedEntitlement(t, true).ID
			case "unlimited":
				entID = env.seedEntitlement(t, false).ID
			case "missing":
				entID = "does-not-exist"
			}
			user := env.seedUser(t, func(u *domain.User) {
				u.FreeTrial = tt.freeTrial
				u.UserLimit = tt.userLimit
				if entID != "" {
					u.EntitlementID = &entID
				}
			})

			d, err := env.guard.Check(context.Background(), user.ID)
			if tt.wantErrKind != "" {
				require.Error(t, err)
				assert.True(t, domain.IsKind(err, tt.wantErrKind))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantTag, d.Tag)
			assert.Equal(t, tt.wantReason, d.Reason)
			if tt.wantTag == domain.TagEntitlementLimited {
				assert.Equal(t, entID, d.EntitlementID)
			}
			if !d.Allowed {
				assert.True(t, domain.IsKind(d.Err(), domain.KindForbidden))
			}
		})
	}
}

func TestGuardService_CheckUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.guard.Check(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestGuardService_CheckDoesNotConsume(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, func(u *domain.User) { u.FreeTrial = 1 })

	for range 3 {
		d, err := env.guard.Check(context.Background(), user.ID)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	assert.Equal(t, 1, env.user(t, user.ID).FreeTrial)
}

func TestGuardService_FreeTrialScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, func(u *domain.User) { u.FreeTrial = 1 })

	d, err := env.guard.Check(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	assert.Equal(t, domain.TagFreeTrial, d.Tag)

	require.NoError(t, env.guard.Settle(ctx, user.ID, d))
	assert.Equal(t, 0, env.user(t, user.ID).FreeTrial)

	d, err = env.guard.Check(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, domain.ReasonNoEntitlement, d.Reason)
}

func TestGuardService_SettleLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ent := env.seedEntitlement(t, true)
	user := env.seedUser(t, func(u *domain.User) {
		u.EntitlementID = &ent.ID
		u.UserLimit = 2
	})

	d, err := env.guard.Check(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, env.guard.Settle(ctx, user.ID, d))
	assert.Equal(t, 1, env.user(t, user.ID).UserLimit)
}

func TestGuardService_SettleNonConsuming(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ent := env.seedEntitlement(t, false)
	user := env.seedUser(t, func(u *domain.User) {
		u.EntitlementID = &ent.ID
		u.UserLimit = 4
	})

	d, err := env.guard.Check(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, env.guard.Settle(ctx, user.ID, d))
	require.NoError(t, env.guard.Settle(ctx, user.ID, domain.Deny(domain.ReasonLimitExceeded)))
	assert.Equal(t, 4, env.user(t, user.ID).UserLimit)
}

func TestGuardService_ConcurrentSettleNeverNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ent := env.seedEntitlement(t, true)
	user := env.seedUser(t, func(u *domain.User) {
		u.EntitlementID = &ent.ID
		u.UserLimit = 10
		u.FreeTrial = 5
	})

	limited := domain.Allow(domain.TagEntitlementLimited, ent.ID)
	trial := domain.Allow(domain.TagFreeTrial, "")

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := env.guard.Settle(ctx, user.ID, limited); err != nil {
				failures.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if err := env.guard.Settle(ctx, user.ID, trial); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	got := env.user(t, user.ID)
	assert.Zero(t, failures.Load())
	assert.Equal(t, 0, got.UserLimit)
	assert.Equal(t, 0, got.FreeTrial)
}
