package door

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vestiar/audit"
)

var t0 = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

type fakeStrike struct {
	calls []string
}

func (s *fakeStrike) Open() error    { s.calls = append(s.calls, "open"); return nil }
func (s *fakeStrike) Close() error   { s.calls = append(s.calls, "close"); return nil }
func (s *fakeStrike) Release() error { return nil }

type fakeSensors struct {
	door  bool
	power bool
}

func (s *fakeSensors) Door() bool     { return s.door }
func (s *fakeSensors) Power() bool    { return s.power }
func (s *fakeSensors) Release() error { return nil }

type captureRecorder struct {
	events []audit.Event
}

func (c *captureRecorder) Record(ev audit.Event) { c.events = append(c.events, ev) }

func newTestActuator(t *testing.T, cfg Config) (*Actuator, *fakeStrike, *fakeSensors, *captureRecorder, *[]Status) {
	t.Helper()
	strike := &fakeStrike{}
	sensors := &fakeSensors{power: true}
	rec := &captureRecorder{}
	var published []Status
	a, err := NewActuator(cfg, strike, sensors, rec, func(s Status) {
		published = append(published, s)
	})
	require.NoError(t, err)
	return a, strike, sensors, rec, &published
}

func TestNewActuatorStartsLocked(t *testing.T) {
	a, strike, _, _, _ := newTestActuator(t, Config{})
	require.Equal(t, []string{"close"}, strike.calls)
	require.Equal(t, Locked, a.Status().Lock)
}

func TestNewActuatorRejectsUnknownMode(t *testing.T) {
	_, err := NewActuator(Config{Mode: "wiggle"}, &fakeStrike{}, &fakeSensors{}, nil, nil)
	require.Error(t, err)
}

func TestGrantAutoRelocksAfterGrace(t *testing.T) {
	a, strike, _, _, _ := newTestActuator(t, Config{})

	a.Grant(t0)
	require.Equal(t, PendingAutoRelock, a.Status().Lock)
	require.Equal(t, []string{"close", "open"}, strike.calls)

	// Not yet: the window is 3s.
	a.Tick(t0.Add(2 * time.Second))
	require.Equal(t, PendingAutoRelock, a.Status().Lock)

	a.Tick(t0.Add(3*time.Second + 10*time.Millisecond))
	require.Equal(t, Locked, a.Status().Lock)
	require.Equal(t, []string{"close", "open", "close"}, strike.calls)
}

func TestUnlockCancelsPendingRelock(t *testing.T) {
	a, _, _, _, _ := newTestActuator(t, Config{})

	a.Grant(t0)
	a.Unlock(t0.Add(time.Second))

	// Well past the original grace window: no relock fires.
	a.Tick(t0.Add(time.Minute))
	require.Equal(t, Unlocked, a.Status().Lock)
}

func TestLockCancelsPendingRelock(t *testing.T) {
	a, _, _, rec, _ := newTestActuator(t, Config{})

	a.Grant(t0)
	a.Lock(t0.Add(time.Second))
	require.Equal(t, Locked, a.Status().Lock)

	a.Tick(t0.Add(time.Minute))
	for _, ev := range rec.events {
		require.NotEqual(t, "auto_relock", ev.Source)
	}
}

func TestPulseModeUsesPulseWidth(t *testing.T) {
	a, strike, _, _, _ := newTestActuator(t, Config{Mode: "pulse", PulseMs: 200})

	a.Grant(t0)
	a.Tick(t0.Add(150 * time.Millisecond))
	require.Equal(t, PendingAutoRelock, a.Status().Lock)

	a.Tick(t0.Add(250 * time.Millisecond))
	require.Equal(t, Locked, a.Status().Lock)
	require.Equal(t, []string{"close", "open", "close"}, strike.calls)
}

func TestGraceWindowConfigurable(t *testing.T) {
	a, _, _, _, _ := newTestActuator(t, Config{GraceMs: 500})

	a.Grant(t0)
	a.Tick(t0.Add(400 * time.Millisecond))
	require.Equal(t, PendingAutoRelock, a.Status().Lock)
	a.Tick(t0.Add(600 * time.Millisecond))
	require.Equal(t, Locked, a.Status().Lock)
}

func TestStateChangesAreAudited(t *testing.T) {
	a, _, _, rec, _ := newTestActuator(t, Config{})

	a.Grant(t0)
	a.Tick(t0.Add(4 * time.Second))

	require.Len(t, rec.events, 2)
	require.Equal(t, "grant", rec.events[0].Source)
	require.Equal(t, "locked", rec.events[0].Detail["from"])
	require.Equal(t, "pending_relock", rec.events[0].Detail["to"])
	require.Equal(t, "auto_relock", rec.events[1].Source)
	require.Equal(t, "locked", rec.events[1].Detail["to"])
}

func TestRedundantCommandNotAudited(t *testing.T) {
	a, _, _, rec, _ := newTestActuator(t, Config{})

	a.Lock(t0)
	a.Lock(t0.Add(time.Second))
	require.Empty(t, rec.events)
}

func TestStatusPublishedOnChangeOnly(t *testing.T) {
	a, _, sensors, _, published := newTestActuator(t, Config{})

	a.Tick(t0)
	a.Tick(t0.Add(5 * time.Millisecond))
	a.Tick(t0.Add(10 * time.Millisecond))
	require.Len(t, *published, 1)

	sensors.door = true
	a.Tick(t0.Add(15 * time.Millisecond))
	require.Len(t, *published, 2)
	require.True(t, (*published)[1].Door)

	a.Unlock(t0.Add(20 * time.Millisecond))
	require.Len(t, *published, 3)
	require.Equal(t, Unlocked, (*published)[2].Lock)
}

func TestRepublishForcesPublish(t *testing.T) {
	a, _, _, _, published := newTestActuator(t, Config{})

	a.Tick(t0)
	require.Len(t, *published, 1)

	a.Republish()
	require.Len(t, *published, 2)
	require.Equal(t, (*published)[0], (*published)[1])
}
