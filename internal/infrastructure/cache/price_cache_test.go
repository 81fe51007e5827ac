package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrilens/v1/internal/domain/pricing"
)

// stepClock is a manually advanced clock.
type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func estimateFor(name string, price float64) pricing.Estimate {
	return pricing.Estimate{Name: name, UnitPrice: price, Currency: "USD", Confidence: pricing.ConfidenceMedium}
}

func TestPriceCache_PutGet(t *testing.T) {
	pc := NewPriceCache(5*time.Minute, 500, newStepClock())

	pc.Put("Chicken Breast", estimateFor("Chicken Breast", 4.99))

	got, ok := pc.Get("chicken breast ")
	require.True(t, ok, "lookups are case- and whitespace-insensitive")
	assert.Equal(t, 4.99, got.UnitPrice)
}

func TestPriceCache_MissForUnknownItem(t *testing.T) {
	pc := NewPriceCache(5*time.Minute, 500, newStepClock())

	_, ok := pc.Get("dragon fruit")
	assert.False(t, ok)
}

func TestPriceCache_EntryExpiresAfterTTL(t *testing.T) {
	clock := newStepClock()
	pc := NewPriceCache(5*time.Minute, 500, clock)
	pc.Put("milk", estimateFor("milk", 3.49))

	clock.Advance(5*time.Minute - time.Second)
	_, ok := pc.Get("milk")
	assert.True(t, ok, "entry is fresh just inside the TTL")

	clock.Advance(2 * time.Second)
	_, ok = pc.Get("milk")
	assert.False(t, ok, "entry expires once the TTL elapses")
	assert.Zero(t, pc.Size(), "expired entry is removed on read")
}

func TestPriceCache_OverwriteRefreshesEntry(t *testing.T) {
	clock := newStepClock()
	pc := NewPriceCache(5*time.Minute, 500, clock)
	pc.Put("eggs", estimateFor("eggs", 2.99))

	clock.Advance(4 * time.Minute)
	pc.Put("eggs", estimateFor("eggs", 3.29))

	clock.Advance(2 * time.Minute)
	got, ok := pc.Get("eggs")
	require.True(t, ok, "overwrite resets the insertion time")
	assert.Equal(t, 3.29, got.UnitPrice)
}

func TestPriceCache_SweepEvictsExpiredFirst(t *testing.T) {
	clock := newStepClock()
	pc := NewPriceCache(5*time.Minute, 3, clock)

	pc.Put("stale", estimateFor("stale", 1))
	clock.Advance(6 * time.Minute)
	pc.Put("fresh-1", estimateFor("fresh-1", 2))
	pc.Put("fresh-2", estimateFor("fresh-2", 3))
	pc.Put("fresh-3", estimateFor("fresh-3", 4))

	assert.Equal(t, 3, pc.Size(), "sweep removed only the expired entry")
	_, ok := pc.Get("stale")
	assert.False(t, ok)
	for _, name := range []string{"fresh-1", "fresh-2", "fresh-3"} {
		_, ok := pc.Get(name)
		assert.True(t, ok, "fresh entry %s survives", name)
	}
}

func TestPriceCache_SweepEvictsOldestWhenOverCapacity(t *testing.T) {
	clock := newStepClock()
	pc := NewPriceCache(time.Hour, 3, clock)

	for i := 0; i < 4; i++ {
		pc.Put(fmt.Sprintf("item-%d", i), estimateFor("x", float64(i)))
		clock.Advance(time.Second)
	}

	assert.Equal(t, 3, pc.Size())
	_, ok := pc.Get("item-0")
	assert.False(t, ok, "oldest insertion is evicted")
	_, ok = pc.Get("item-3")
	assert.True(t, ok)
}
