package adaptive

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore() (*Store, *clock.Mock) {
	mock := clock.NewMock()
	return NewStore(DefaultParams(), mock), mock
}

func TestPromoteColdToHot(t *testing.T) {
	store, _ := testStore()

	previous := store.Promote("corr-1")

	assert.Equal(t, Cold, previous)
	assert.Equal(t, Hot, store.State("corr-1"))
	assert.Equal(t, 1.0, store.Rate("corr-1"))
}

func TestUnknownCorrelationIsCold(t *testing.T) {
	store, _ := testStore()

	assert.Equal(t, Cold, store.State("never-seen"))
	assert.Equal(t, store.Params().ColdRate, store.Rate("never-seen"))
}

func TestRepromoteResetsFullWindow(t *testing.T) {
	store, mock := testStore()
	hotTTL := store.Params().HotTTL

	store.Promote("corr-1")
	mock.Add(hotTTL - time.Second)

	previous := store.Promote("corr-1")
	assert.Equal(t, Hot, previous)

	// one second short of the original window plus ten past it
	mock.Add(11 * time.Second)
	assert.Equal(t, Hot, store.State("corr-1"))

	mock.Add(hotTTL)
	assert.NotEqual(t, Hot, store.State("corr-1"))
}

func TestHotDecaysToWarmThenCold(t *testing.T) {
	store, mock := testStore()
	params := store.Params()

	store.Promote("corr-1")

	mock.Add(params.HotTTL + time.Second)
	store.Tick()
	assert.Equal(t, Warm, store.State("corr-1"))
	assert.Equal(t, params.WarmRate, store.Rate("corr-1"))

	mock.Add(params.WarmTTL + time.Second)
	store.Tick()
	assert.Equal(t, Cold, store.State("corr-1"))
	assert.Empty(t, store.Status())
}

func TestLazyDecayWithoutTick(t *testing.T) {
	store, mock := testStore()
	params := store.Params()

	store.Promote("corr-1")

	// no tick runs at all: reads still see the decayed tiers
	mock.Add(params.HotTTL + time.Second)
	assert.Equal(t, Warm, store.State("corr-1"))

	mock.Add(params.WarmTTL)
	assert.Equal(t, Cold, store.State("corr-1"))
}

func TestPromotionWinsOverWarm(t *testing.T) {
	store, mock := testStore()
	params := store.Params()

	store.Promote("corr-1")
	mock.Add(params.HotTTL + time.Second)
	store.Tick()
	require.Equal(t, Warm, store.State("corr-1"))

	previous := store.Promote("corr-1")
	assert.Equal(t, Warm, previous)
	assert.Equal(t, Hot, store.State("corr-1"))

	// fresh full hot window from the promotion instant
	mock.Add(params.HotTTL - time.Second)
	assert.Equal(t, Hot, store.State("corr-1"))
}

func TestDisableRemovesImmediately(t *testing.T) {
	store, _ := testStore()

	store.Promote("corr-1")
	previous := store.Disable("corr-1")

	assert.Equal(t, Hot, previous)
	assert.Equal(t, Cold, store.State("corr-1"))
	assert.Empty(t, store.Status())
}

func TestDisableUnknownIsNoop(t *testing.T) {
	store, _ := testStore()

	before := store.Version()
	previous := store.Disable("never-seen")

	assert.Equal(t, Cold, previous)
	assert.Equal(t, before, store.Version())
}

func TestTickIsIdempotent(t *testing.T) {
	store, mock := testStore()
	params := store.Params()

	store.Promote("corr-1")
	mock.Add(params.HotTTL + time.Second)

	store.Tick()
	version := store.Version()
	status := store.Status()

	store.Tick()
	assert.Equal(t, version, store.Version())
	assert.Equal(t, status, store.Status())
}

func TestVersionMovesOnlyOnChange(t *testing.T) {
	store, mock := testStore()

	v0 := store.Version()
	store.Tick()
	assert.Equal(t, v0, store.Version(), "tick over empty store must not bump the version")

	store.Promote("corr-1")
	v1 := store.Version()
	assert.NotEqual(t, v0, v1)

	// refresh changes the hot set TTLs, so it counts as a change
	mock.Add(time.Minute)
	store.Promote("corr-1")
	assert.NotEqual(t, v1, store.Version())
}

func TestStatusListsTiersAndTTL(t *testing.T) {
	store, mock := testStore()
	params := store.Params()

	store.Promote("corr-hot")
	store.Promote("corr-warm")

	mock.Add(params.HotTTL + time.Second)
	store.Tick()
	store.Promote("corr-hot")

	byID := make(map[string]StatusEntry)
	for _, s := range store.Status() {
		byID[s.CorrelationID] = s
	}

	require.Len(t, byID, 2)
	assert.Equal(t, "hot", byID["corr-hot"].State)
	assert.Equal(t, 1.0, byID["corr-hot"].Rate)
	assert.Equal(t, int64(params.HotTTL.Seconds()), byID["corr-hot"].RemainingTTL)
	assert.Equal(t, "warm", byID["corr-warm"].State)
	assert.Equal(t, params.WarmRate, byID["corr-warm"].Rate)
}

func TestSchedulerSweepsOnTick(t *testing.T) {
	store, mock := testStore()
	params := store.Params()

	store.Promote("corr-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := NewScheduler(store)
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	// let the scheduler goroutine register its ticker before advancing
	time.Sleep(10 * time.Millisecond)

	// scheduler demotes within one tick of expiry
	mock.Add(params.HotTTL + params.Tick)
	assert.Eventually(t, func() bool {
		status := store.Status()
		return len(status) == 1 && status[0].State == "warm"
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}
