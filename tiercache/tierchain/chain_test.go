package tierchain

import (
	"context"
	"testing"
	"time"

	"github.com/IvanBrykalov/multitiercache/tiercache/tier"
	"github.com/stretchr/testify/require"
)

func TestNew_SortsByLevelAscending(t *testing.T) {
	t.Parallel()
	l1 := tier.NewLocal(tier.LocalConfig{Name: "l1"})
	l2 := tier.NewLocal(tier.LocalConfig{Name: "l2"})

	c, err := New([]TierSpec{
		{Backend: l2, Level: 2, Required: true},
		{Backend: l1, Level: 1},
	})
	require.NoError(t, err)

	tiers := c.Tiers()
	require.Len(t, tiers, 2)
	require.Equal(t, "l1", tiers[0].Backend.Name())
	require.Equal(t, "l2", tiers[1].Backend.Name())
}

func TestNew_RejectsEmptyAndDuplicateLevels(t *testing.T) {
	t.Parallel()
	_, err := New(nil)
	require.Error(t, err)

	l1 := tier.NewLocal(tier.LocalConfig{})
	l2 := tier.NewLocal(tier.LocalConfig{})
	_, err = New([]TierSpec{
		{Backend: l1, Level: 1},
		{Backend: l2, Level: 1},
	})
	require.Error(t, err)
}

func TestNewLegacyTwoTier(t *testing.T) {
	t.Parallel()
	l1 := tier.NewLocal(tier.LocalConfig{Name: "l1"})
	l2 := tier.NewLocal(tier.LocalConfig{Name: "l2"})

	c, err := NewLegacyTwoTier(l1, l2)
	require.NoError(t, err)
	tiers := c.Tiers()
	require.Len(t, tiers, 2)
	require.False(t, tiers[0].Promote)
	require.True(t, tiers[1].Promote)
	require.True(t, tiers[1].Required)
}

func TestChain_ShallowerAndHitCounts(t *testing.T) {
	t.Parallel()
	l1 := tier.NewLocal(tier.LocalConfig{Name: "l1"})
	l2 := tier.NewLocal(tier.LocalConfig{Name: "l2"})
	c, err := New([]TierSpec{{Backend: l1, Level: 1}, {Backend: l2, Level: 2}})
	require.NoError(t, err)

	tiers := c.Tiers()
	require.Len(t, c.Shallower(1), 1)
	tiers[1].IncrHit()
	tiers[1].IncrHit()

	counts := c.HitCounts()
	require.Equal(t, int64(0), counts["l1"])
	require.Equal(t, int64(2), counts["l2"])
}

func TestChain_Health(t *testing.T) {
	t.Parallel()
	l1 := tier.NewLocal(tier.LocalConfig{Name: "l1"})
	c, err := New([]TierSpec{{Backend: l1, Level: 1}})
	require.NoError(t, err)

	health := c.Health(context.Background())
	require.True(t, health["l1"])
}

func TestScaledTTL(t *testing.T) {
	t.Parallel()
	t1 := &ConfiguredTier{TierSpec: TierSpec{TTLScale: 0}}
	require.Equal(t, time.Minute, ScaledTTL(t1, time.Minute), "zero scale defaults to 1.0")

	t2 := &ConfiguredTier{TierSpec: TierSpec{TTLScale: 0.5}}
	require.Equal(t, 30*time.Second, ScaledTTL(t2, time.Minute))
}
