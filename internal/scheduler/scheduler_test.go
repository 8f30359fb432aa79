package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/cache"
	"github.com/aarons-archive/skeleton-clique-bot/internal/domain"
	"github.com/aarons-archive/skeleton-clique-bot/internal/store"
)

type fakeDeliverer struct {
	fired  chan domain.Reminder
	err    error
	panics bool
	delay  time.Duration
	calls  atomic.Int32
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{fired: make(chan domain.Reminder, 16)}
}

func (d *fakeDeliverer) Deliver(_ context.Context, r domain.Reminder) error {
	d.calls.Add(1)
	time.Sleep(d.delay)
	d.fired <- r
	if d.panics {
		panic("channel vanished")
	}
	return d.err
}

func (d *fakeDeliverer) wait(t *testing.T) domain.Reminder {
	t.Helper()
	select {
	case r := <-d.fired:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("reminder did not fire")
		return domain.Reminder{}
	}
}

type fixture struct {
	st    *store.SQLStore
	cache *cache.Cache
	del   *fakeDeliverer
	sch   *Scheduler
}

func newFixture(t *testing.T, now func() time.Time) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{Dialect: store.DialectSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	c := cache.New(st, zap.NewNop(), cache.Options{})
	require.NoError(t, c.Load(ctx))

	del := newFakeDeliverer()
	sch := New(st, c, del, zap.NewNop(), Options{
		MaxConcurrent: 4,
		Retry:         store.RetryPolicy{Retries: 1, Base: time.Millisecond},
		Now:           now,
	})
	t.Cleanup(func() { _ = sch.Stop(context.Background()) })
	return &fixture{st: st, cache: c, del: del, sch: sch}
}

func (f *fixture) rows(t *testing.T) []domain.Reminder {
	t.Helper()
	rs, err := f.st.ListReminders(context.Background())
	require.NoError(t, err)
	return rs
}

// stored is rows for use inside Eventually, off the test goroutine.
func (f *fixture) stored() []domain.Reminder {
	rs, _ := f.st.ListReminders(context.Background())
	return rs
}

func TestSchedule_OneShotFiresOnceThenRowIsGone(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.sch.Schedule(ctx, domain.Draft{
		OwnerID:   1,
		ChannelID: 100,
		FireAt:    time.Now().Add(50 * time.Millisecond),
		Content:   "stretch",
	})
	require.NoError(t, err)
	require.NotZero(t, r.ID)
	require.Len(t, f.rows(t), 1)

	got := f.del.wait(t)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "stretch", got.Content)

	require.Eventually(t, func() bool { return len(f.stored()) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.sch.Armed())

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, f.del.calls.Load())
}

func TestSchedule_RejectsPastInstant(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.sch.Schedule(context.Background(), domain.Draft{
		OwnerID: 1,
		FireAt:  time.Now().Add(-time.Minute),
		Content: "too late",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
	assert.Empty(t, f.rows(t))
}

func TestSchedule_PersistsOwnerBeforeReminder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.sch.Schedule(ctx, domain.Draft{OwnerID: 55, FireAt: time.Now().Add(time.Hour), Content: "x"})
	require.NoError(t, err)

	users, err := f.st.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.EqualValues(t, 55, users[0].ID)
}

func TestDailyReminder_NextInstantPinnedToPreviousTarget(t *testing.T) {
	f := newFixture(t, nil)
	f.del.delay = 80 * time.Millisecond // a slow delivery must not shift the schedule
	ctx := context.Background()

	target := time.Now().Add(50 * time.Millisecond)
	r, err := f.sch.Schedule(ctx, domain.Draft{
		OwnerID: 1,
		FireAt:  target,
		Content: "standup",
		Repeat:  domain.RepeatEveryDay,
	})
	require.NoError(t, err)

	got := f.del.wait(t)
	assert.True(t, got.FireAt.Equal(target.UTC()))

	want := target.UTC().AddDate(0, 0, 1)
	require.Eventually(t, func() bool {
		armed, ok := f.sch.Get(r.ID)
		return ok && armed.FireAt.Equal(want)
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		rows := f.stored()
		return len(rows) == 1 && rows[0].FireAt.Unix() == want.Unix()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancel_UnknownIDIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	ok, err := f.sch.Cancel(context.Background(), 424242)
	assert.NoError(t, err)
	assert.False(t, ok)

	// Twice is still fine.
	ok, err = f.sch.Cancel(context.Background(), 424242)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCancel_DisarmsAndDeletes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.sch.Schedule(ctx, domain.Draft{OwnerID: 1, FireAt: time.Now().Add(100 * time.Millisecond), Content: "x"})
	require.NoError(t, err)

	ok, err := f.sch.Cancel(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.rows(t))
	assert.Equal(t, 0, f.sch.Armed())

	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 0, f.del.calls.Load())
}

func TestCancelOwned_OtherOwnerIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.sch.Schedule(ctx, domain.Draft{OwnerID: 1, FireAt: time.Now().Add(time.Hour), Content: "mine"})
	require.NoError(t, err)

	ok, err := f.sch.CancelOwned(ctx, 2, r.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.sch.Armed())

	ok, err = f.sch.CancelOwned(ctx, 1, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReloadPending_OverdueFiresAndRecurs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.cache.PersistUser(ctx, 1))
	prev := time.Now().Add(-time.Hour).Truncate(time.Second).UTC()
	id, err := f.st.InsertReminder(ctx, domain.Reminder{
		OwnerID:   1,
		ChannelID: 100,
		CreatedAt: prev.Add(-time.Hour),
		FireAt:    prev,
		Content:   "water the plants",
		Repeat:    domain.RepeatEveryOtherWeek,
	})
	require.NoError(t, err)
	futureID, err := f.st.InsertReminder(ctx, domain.Reminder{
		OwnerID: 1,
		FireAt:  time.Now().Add(time.Hour),
		Content: "later",
	})
	require.NoError(t, err)

	n, err := f.sch.ReloadPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := f.del.wait(t)
	assert.Equal(t, id, got.ID)

	want := prev.AddDate(0, 0, 14)
	require.Eventually(t, func() bool {
		r, ok := f.sch.Get(id)
		return ok && r.FireAt.Equal(want)
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := f.sch.Get(futureID)
	assert.True(t, ok)
	assert.EqualValues(t, 1, f.del.calls.Load())
}

func TestNextFire_SkipsMissedPeriods(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, func() time.Time { return now })

	r := domain.Reminder{
		OwnerID: 1,
		FireAt:  time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC),
		Repeat:  domain.RepeatEveryDay,
	}
	assert.Equal(t, time.Date(2025, time.March, 11, 9, 0, 0, 0, time.UTC), f.sch.nextFire(r))
}

func TestNextFire_UsesOwnerZone(t *testing.T) {
	now := time.Date(2025, time.March, 29, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, func() time.Time { return now })
	f.cache.SetTimezone(1, "Europe/Berlin")

	// 09:00 Berlin on the day before the spring transition.
	prev := time.Date(2025, time.March, 29, 8, 0, 0, 0, time.UTC)
	next := f.sch.nextFire(domain.Reminder{OwnerID: 1, FireAt: prev, Repeat: domain.RepeatEveryDay})
	assert.Equal(t, time.Date(2025, time.March, 30, 7, 0, 0, 0, time.UTC), next)
}

func TestDeliveryFailureStillCompletes(t *testing.T) {
	for name, configure := range map[string]func(*fakeDeliverer){
		"error": func(d *fakeDeliverer) { d.err = errors.New("chat not found") },
		"panic": func(d *fakeDeliverer) { d.panics = true },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			configure(f.del)
			ctx := context.Background()

			_, err := f.sch.Schedule(ctx, domain.Draft{OwnerID: 1, FireAt: time.Now().Add(30 * time.Millisecond), Content: "x"})
			require.NoError(t, err)

			f.del.wait(t)
			require.Eventually(t, func() bool { return len(f.stored()) == 0 }, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestSafeDeliver_WrapsErrDelivery(t *testing.T) {
	f := newFixture(t, nil)
	f.del.err = errors.New("forbidden")

	err := f.sch.safeDeliver(domain.Reminder{ID: 1})
	assert.ErrorIs(t, err, domain.ErrDelivery)

	f.del.err = nil
	f.del.panics = true
	err = f.sch.safeDeliver(domain.Reminder{ID: 2})
	assert.ErrorIs(t, err, domain.ErrDelivery)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.sch.Schedule(ctx, domain.Draft{OwnerID: 1, FireAt: time.Now().Add(time.Hour), Content: "old"})
	require.NoError(t, err)

	at := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	moved, err := f.sch.Reschedule(ctx, r.ID, at, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", moved.Content)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].Content)
	assert.Equal(t, at.Unix(), rows[0].FireAt.Unix())

	_, err = f.sch.Reschedule(ctx, 999, at, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.sch.Reschedule(ctx, r.ID, time.Now().Add(-time.Second), "")
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
}

func TestListByOwner_SoonestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	late, err := f.sch.Schedule(ctx, domain.Draft{OwnerID: 1, FireAt: time.Now().Add(2 * time.Hour), Content: "late"})
	require.NoError(t, err)
	soon, err := f.sch.Schedule(ctx, domain.Draft{OwnerID: 1, FireAt: time.Now().Add(time.Hour), Content: "soon"})
	require.NoError(t, err)
	_, err = f.sch.Schedule(ctx, domain.Draft{OwnerID: 2, FireAt: time.Now().Add(time.Hour), Content: "other"})
	require.NoError(t, err)

	list := f.sch.ListByOwner(1)
	require.Len(t, list, 2)
	assert.Equal(t, soon.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
}

func TestStop_DisarmsButKeepsRows(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.sch.Schedule(ctx, domain.Draft{OwnerID: 1, FireAt: time.Now().Add(50 * time.Millisecond), Content: "x"})
	require.NoError(t, err)

	require.NoError(t, f.sch.Stop(ctx))
	assert.Equal(t, 0, f.sch.Armed())

	time.Sleep(120 * time.Millisecond)
	assert.EqualValues(t, 0, f.del.calls.Load())
	assert.Len(t, f.rows(t), 1)

	// Idempotent.
	require.NoError(t, f.sch.Stop(ctx))
}
