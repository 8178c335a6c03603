package livesync_test

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/livesync"
	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/query"
	"github.com/grovetools/causes/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newController(t *testing.T, opts ...livesync.Option) (*livesync.Controller[models.Organization], *testutil.ManualSource[models.Organization]) {
	t.Helper()
	src := testutil.NewManualSource[models.Organization]()
	ctrl := livesync.New[models.Organization]("ngos", src, append([]livesync.Option{livesync.WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(ctrl.Stop)
	return ctrl, src
}

func seq(n uint64, items ...models.Organization) collection.Snapshot[models.Organization] {
	s := testutil.Snap("ngos", items...)
	s.Seq = n
	return s
}

func ids(items []models.Organization) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

var (
	helpingHands = testutil.Org("1", "Helping Hands", "Health")
	greenEarth   = testutil.Org("2", "Green Earth", "Environment")
	redCross     = testutil.Org("3", "Red Cross", "Health")
)

func TestControllerEndToEnd(t *testing.T) {
	ctrl, src := newController(t)
	assert.Equal(t, livesync.PhaseIdle, ctrl.State().Phase)

	require.NoError(t, ctrl.Start())
	assert.Equal(t, livesync.PhaseLoading, ctrl.State().Phase)
	assert.Empty(t, ctrl.Visible())

	src.Deliver(testutil.Snap("ngos", helpingHands, greenEarth))
	assert.Equal(t, livesync.PhaseReady, ctrl.State().Phase)
	assert.Equal(t, []string{"1", "2"}, ids(ctrl.Visible()))

	require.NoError(t, ctrl.SetQuery(query.All().InCategory("Health")))
	assert.Equal(t, []models.Organization{helpingHands}, ctrl.Visible())

	src.Deliver(testutil.Snap("ngos", greenEarth))
	assert.Equal(t, livesync.PhaseReady, ctrl.State().Phase)
	assert.Empty(t, ctrl.Visible())

	view := ctrl.View()
	assert.Equal(t, 1, view.Total)
	assert.Equal(t, "ngos", view.Collection)
}

func TestControllerStartOpensExactlyOneSubscription(t *testing.T) {
	ctrl, src := newController(t)

	require.NoError(t, ctrl.Start())
	require.NoError(t, ctrl.Start())
	assert.Len(t, src.Subscriptions(), 1)
	assert.Equal(t, "ngos", src.Last(t).Collection)

	src.Deliver(testutil.Snap("ngos", helpingHands))
	require.NoError(t, ctrl.Start())
	assert.Len(t, src.Subscriptions(), 1, "Start while ready is a no-op")
	assert.Equal(t, 1, src.Open())
}

func TestControllerIgnoresNotificationsAfterStop(t *testing.T) {
	ctrl, src := newController(t)
	require.NoError(t, ctrl.Start())
	sub := src.Last(t)
	sub.Deliver(testutil.Snap("ngos", helpingHands, greenEarth))

	ctrl.Stop()
	assert.True(t, sub.Released())
	assert.Equal(t, 0, src.Open())
	assert.Equal(t, livesync.PhaseIdle, ctrl.State().Phase)
	assert.Empty(t, ctrl.Visible())

	// A guarded delivery is refused by the dispatcher; an unguarded one
	// simulates a source that ignores Unsubscribe.
	assert.False(t, sub.Deliver(testutil.Snap("ngos", redCross)))
	sub.DeliverUnguarded(testutil.Snap("ngos", redCross))
	sub.FailUnguarded(errors.Connectivity("ngos", fmt.Errorf("late")))

	assert.Equal(t, livesync.PhaseIdle, ctrl.State().Phase)
	assert.Empty(t, ctrl.Visible())
	assert.Equal(t, 0, ctrl.View().Total)
}

func TestControllerStopIsIdempotent(t *testing.T) {
	ctrl, src := newController(t)
	ctrl.Stop()
	require.NoError(t, ctrl.Start())
	ctrl.Stop()
	ctrl.Stop()
	assert.Equal(t, livesync.PhaseIdle, ctrl.State().Phase)
	assert.Len(t, src.Subscriptions(), 1)
	assert.Equal(t, 0, src.Open())
}

func TestControllerErrorKeepsCache(t *testing.T) {
	ctrl, src := newController(t)
	require.NoError(t, ctrl.Start())
	src.Deliver(testutil.Snap("ngos", helpingHands, greenEarth, redCross))
	before := ctrl.Visible()
	require.Len(t, before, 3)

	cause := errors.Connectivity("ngos", fmt.Errorf("connection refused"))
	src.Fail(cause)

	state := ctrl.State()
	assert.Equal(t, livesync.PhaseError, state.Phase)
	assert.True(t, errors.Is(state.Err, errors.ErrCodeConnectivity))
	assert.Equal(t, "cannot reach collection 'ngos'", state.Reason())
	assert.Equal(t, before, ctrl.Visible())

	require.NoError(t, ctrl.SetQuery(query.All().Matching("red")))
	assert.Equal(t, []models.Organization{redCross}, ctrl.Visible(), "filtering still works on stale data")
}

func TestControllerSnapshotAfterErrorRecovers(t *testing.T) {
	ctrl, src := newController(t)
	require.NoError(t, ctrl.Start())
	src.Fail(errors.PermissionDenied("ngos", nil))
	require.Equal(t, livesync.PhaseError, ctrl.State().Phase)

	src.Deliver(testutil.Snap("ngos", helpingHands))
	assert.Equal(t, livesync.State{Phase: livesync.PhaseReady}, ctrl.State())
	assert.Len(t, src.Subscriptions(), 1)
}

func TestControllerDiscardsStaleSnapshots(t *testing.T) {
	ctrl, src := newController(t)
	require.NoError(t, ctrl.Start())

	src.Deliver(seq(2, helpingHands, greenEarth))
	src.Deliver(seq(1, redCross))
	assert.Equal(t, []string{"1", "2"}, ids(ctrl.Visible()))

	src.Deliver(seq(2, redCross))
	assert.Equal(t, []string{"1", "2"}, ids(ctrl.Visible()), "equal seq is not newer")

	src.Deliver(seq(3, redCross))
	assert.Equal(t, []string{"3"}, ids(ctrl.Visible()))
	assert.Equal(t, uint64(3), ctrl.View().Seq)
}

func TestControllerRedeliveredSeqRecoversFromError(t *testing.T) {
	ctrl, src := newController(t)
	require.NoError(t, ctrl.Start())
	src.Deliver(seq(5, helpingHands, greenEarth))

	src.Fail(errors.Connectivity("ngos", fmt.Errorf("stream dropped")))
	require.Equal(t, livesync.PhaseError, ctrl.State().Phase)

	// A reconnected stream resends the snapshot it already delivered.
	src.Deliver(seq(5, redCross))
	assert.Equal(t, livesync.State{Phase: livesync.PhaseReady}, ctrl.State())
	assert.Equal(t, []string{"1", "2"}, ids(ctrl.Visible()))
	assert.Equal(t, uint64(5), ctrl.View().Seq)

	src.Fail(errors.Connectivity("ngos", fmt.Errorf("stream dropped")))
	src.Deliver(seq(4, redCross))
	assert.Equal(t, livesync.PhaseError, ctrl.State().Phase, "older seq stays discarded")
}

func TestControllerRetry(t *testing.T) {
	ctrl, src := newController(t)

	err := ctrl.Retry()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidTransition))

	require.NoError(t, ctrl.Start())
	src.Deliver(seq(5, helpingHands))
	assert.True(t, errors.Is(ctrl.Retry(), errors.ErrCodeInvalidTransition))

	src.Fail(errors.Connectivity("ngos", fmt.Errorf("reset")))
	first := src.Last(t)

	require.NoError(t, ctrl.Retry())
	assert.True(t, first.Released(), "old subscription released before reopening")
	assert.Len(t, src.Subscriptions(), 2)
	assert.Equal(t, 1, src.Open())
	assert.Equal(t, livesync.PhaseLoading, ctrl.State().Phase)
	assert.Equal(t, []string{"1"}, ids(ctrl.Visible()), "stale data stays visible while reloading")

	// Late notifications from the first subscription are ignored.
	first.DeliverUnguarded(seq(9, redCross))
	assert.Equal(t, livesync.PhaseLoading, ctrl.State().Phase)

	// Sequence numbers restart with the new subscription.
	src.Last(t).Deliver(seq(1, greenEarth))
	assert.Equal(t, livesync.PhaseReady, ctrl.State().Phase)
	assert.Equal(t, []string{"2"}, ids(ctrl.Visible()))
}

func TestControllerStartFromErrorBehavesLikeRetry(t *testing.T) {
	ctrl, src := newController(t)
	require.NoError(t, ctrl.Start())
	src.Fail(errors.Connectivity("ngos", nil))

	require.NoError(t, ctrl.Start())
	assert.Len(t, src.Subscriptions(), 2)
	assert.Equal(t, 1, src.Open())
}

func TestControllerSetQuery(t *testing.T) {
	ctrl, src := newController(t)

	require.NoError(t, ctrl.SetQuery(query.All().InCategory("Health")))
	assert.Empty(t, ctrl.Visible(), "no data while idle")
	assert.Empty(t, src.Subscriptions(), "SetQuery never subscribes")

	err := ctrl.SetQuery(query.Params{Search: "\x00"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidQuery))
	assert.Equal(t, query.All().InCategory("Health"), ctrl.Query(), "previous query kept")

	require.NoError(t, ctrl.Start())
	src.Deliver(testutil.Snap("ngos", helpingHands, greenEarth, redCross))
	assert.Equal(t, []string{"1", "3"}, ids(ctrl.Visible()))
	assert.Len(t, src.Subscriptions(), 1)
}

func TestControllerInitialParams(t *testing.T) {
	ctrl, src := newController(t, livesync.WithParams(query.All().Matching("earth")))
	require.NoError(t, ctrl.Start())
	src.Deliver(testutil.Snap("ngos", helpingHands, greenEarth))
	assert.Equal(t, []string{"2"}, ids(ctrl.Visible()))

	invalid, _ := newController(t, livesync.WithParams(query.Params{Search: "\x01"}))
	assert.True(t, invalid.Query().IsAll())
}

func TestControllerVisibleReturnsCopy(t *testing.T) {
	ctrl, src := newController(t)
	require.NoError(t, ctrl.Start())
	src.Deliver(testutil.Snap("ngos", helpingHands))

	visible := ctrl.Visible()
	visible[0].DisplayName = "changed"
	assert.Equal(t, "Helping Hands", ctrl.Visible()[0].DisplayName)
}

func TestControllerRejectsDuplicateSnapshot(t *testing.T) {
	ctrl, src := newController(t)
	require.NoError(t, ctrl.Start())
	src.Deliver(testutil.Snap("ngos", helpingHands))

	src.Deliver(testutil.Snap("ngos", greenEarth, greenEarth))
	assert.Equal(t, []string{"1"}, ids(ctrl.Visible()))
	assert.Equal(t, livesync.PhaseReady, ctrl.State().Phase)
}

func TestControllerWatch(t *testing.T) {
	ctrl, src := newController(t)
	views, cancel := ctrl.Watch()

	initial := <-views
	assert.Equal(t, livesync.PhaseIdle, initial.State)

	require.NoError(t, ctrl.Start())
	src.Deliver(testutil.Snap("ngos", helpingHands))
	src.Deliver(testutil.Snap("ngos", helpingHands, greenEarth))

	// Only the most recent view is buffered.
	latest := <-views
	assert.Equal(t, livesync.PhaseReady, latest.State)
	assert.Equal(t, []string{"1", "2"}, ids(latest.Entities))

	select {
	case v := <-views:
		t.Fatalf("unexpected extra view: %+v", v)
	default:
	}

	cancel()
	cancel()
	_, open := <-views
	assert.False(t, open)

	// Recomputing after cancel must not panic on the closed channel.
	require.NoError(t, ctrl.SetQuery(query.All().Matching("green")))
}

func TestControllerStopRacesWithDelivery(t *testing.T) {
	for range 50 {
		src := testutil.NewManualSource[models.Organization]()
		ctrl := livesync.New[models.Organization]("ngos", src, livesync.WithLogger(quietLogger()))
		require.NoError(t, ctrl.Start())
		sub := src.Last(t)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint64(1); i <= 100; i++ {
				if !sub.Deliver(seq(i, helpingHands, greenEarth)) {
					return
				}
			}
		}()

		time.Sleep(time.Microsecond)
		ctrl.Stop()
		wg.Wait()

		require.Equal(t, livesync.PhaseIdle, ctrl.State().Phase)
		require.Empty(t, ctrl.Visible())
		require.Equal(t, 0, src.Open())
	}
}

func TestProject(t *testing.T) {
	snap := seq(4, helpingHands, greenEarth, redCross)
	state := livesync.State{Phase: livesync.PhaseReady}

	view := livesync.Project(state, snap, query.All().InCategory("Health"))
	assert.Equal(t, []string{"1", "3"}, ids(view.Entities))
	assert.Equal(t, 3, view.Total)
	assert.Equal(t, uint64(4), view.Seq)
	assert.Equal(t, livesync.PhaseReady, view.State)
	assert.Equal(t, []string{"1", "2", "3"}, snap.IDs(), "projection leaves the snapshot alone")

	again := livesync.Project(state, snap, query.All().InCategory("Health"))
	assert.Equal(t, view, again)

	bad := livesync.Project(state, snap, query.Params{Search: "\x02"})
	assert.Empty(t, bad.Entities)
}

func TestStateReason(t *testing.T) {
	assert.Equal(t, "", livesync.State{Phase: livesync.PhaseReady}.Reason())

	s := livesync.State{Phase: livesync.PhaseError, Err: errors.PermissionDenied("ngos", nil)}
	assert.Equal(t, "access to collection 'ngos' denied", s.Reason())
	assert.Equal(t, "error(access to collection 'ngos' denied)", s.String())
	assert.Equal(t, "loading", livesync.PhaseLoading.String())
}
