/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/intel/rsp-sw-toolkit-im-suite-timing-engine/app/tagevent"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTag         = "E20000000000000000000001"
	testTimingPoint = "finish"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: base}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry() metrics.Registry {
	return metrics.NewRegistry()
}

type harness struct {
	*Manager
	clock    *fakeClock
	registry metrics.Registry
	sub      *subscriber
	out      <-chan CrossingEvent
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clock := newFakeClock()
	reg := newTestRegistry()
	m := NewManager(WithClock(clock), WithRegistry(reg))
	require.NoError(t, m.Configure(testTimingPoint, cfg))
	// registered directly so crossings can wait for delivery
	sub := newSubscriber(1000)
	m.subsMu.Lock()
	m.subs[sub] = struct{}{}
	m.subsMu.Unlock()
	return &harness{Manager: m, clock: clock, registry: reg, sub: sub, out: sub.ch}
}

// read delivers an event synchronously, as the routing worker would.
func (h *harness) read(tagID string, offset time.Duration, rssi float64) {
	h.route(tagevent.TagEvent{
		TagID:         tagID,
		RSSI:          rssi,
		Timestamp:     base.Add(offset),
		AntennaID:     1,
		ReaderID:      "reader-1",
		TimingPointID: testTimingPoint,
	})
}

func (h *harness) crossings() []CrossingEvent {
	deadline := time.Now().Add(2 * time.Second)
	for !h.sub.delivered() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	var out []CrossingEvent
	for {
		select {
		case ce := <-h.out:
			out = append(out, ce)
		default:
			return out
		}
	}
}

func (h *harness) counter(name string) int64 {
	return metrics.GetOrRegisterCounter(name, h.registry).Count()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func assertTimeNear(t *testing.T, expected, actual time.Time, tolerance time.Duration) {
	t.Helper()
	if d := actual.Sub(expected); d > tolerance || d < -tolerance {
		t.Errorf("expected %v within %v, but got %v (off by %v)", expected, tolerance, actual, d)
	}
}

func TestFirstSeenEmitsOnceAtFirstEvent(t *testing.T) {
	h := newHarness(t, Config{Mode: FirstSeen, Window: 3 * time.Second, Cooldown: 5 * time.Second})

	for i := 0; i < 10; i++ {
		h.read(testTag, seconds(float64(i)*0.2), -60+float64(i))
		h.clock.Advance(200 * time.Millisecond)
	}
	h.sweep()

	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, UsedFirstSeen, got[0].ModeUsed)
	assert.Equal(t, 1, got[0].SampleCount)
	assert.Equal(t, testTimingPoint, got[0].TimingPointID)
	assert.Equal(t, "reader-1", got[0].ReaderID)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, int64(9), h.counter("Detection.Route.Cooldown-Suppressed"))
}

func TestLastSeenUsesChronologicallyLastEvent(t *testing.T) {
	h := newHarness(t, Config{Mode: LastSeen, Window: 3 * time.Second, Cooldown: 5 * time.Second})

	// arrival order differs from capture order
	for _, off := range []float64{0, 0.4, 1.7, 0.9, 1.2} {
		h.read(testTag, seconds(off), -55)
	}
	h.clock.Advance(2999 * time.Millisecond)
	h.sweep()
	require.Empty(t, h.crossings(), "window must still be open")

	h.clock.Advance(time.Millisecond)
	h.sweep()

	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, base.Add(seconds(1.7)), got[0].Timestamp)
	assert.Equal(t, UsedLastSeen, got[0].ModeUsed)
	assert.Equal(t, 5, got[0].SampleCount)
}

func TestPeakRSSIFindsParabolaVertex(t *testing.T) {
	peaks := []float64{0.35, 1.0, 1.234, 2.1}

	for _, peak := range peaks {
		t.Run(fmt.Sprintf("PeakAt%v", peak), func(t *testing.T) {
			h := newHarness(t, Config{Mode: PeakRSSI, Window: 3 * time.Second, Cooldown: 5 * time.Second, MinSamplesForRegression: 3})

			for x := 0.0; x <= 2.5; x += 0.25 {
				h.read(testTag, seconds(x), -45-8*(x-peak)*(x-peak))
			}
			h.clock.Advance(3 * time.Second)
			h.sweep()

			got := h.crossings()
			require.Len(t, got, 1)
			assertTimeNear(t, base.Add(seconds(peak)), got[0].Timestamp, time.Millisecond)
			assert.Equal(t, UsedPeakRSSI, got[0].ModeUsed)
			assert.Equal(t, 11, got[0].SampleCount)
			assert.InDelta(t, -45, got[0].RSSI, 0.001)
		})
	}
}

func TestPeakRSSIExampleScenario(t *testing.T) {
	h := newHarness(t, Config{Mode: PeakRSSI, Window: 3 * time.Second, Cooldown: 5 * time.Second, MinSamplesForRegression: 3})

	offsets := []float64{0.0, 0.5, 1.0, 1.5, 2.0}
	rssis := []float64{-60, -55, -50, -55, -60}
	for i := range offsets {
		h.read(testTag, seconds(offsets[i]), rssis[i])
	}
	h.clock.Advance(3 * time.Second)
	h.sweep()

	got := h.crossings()
	require.Len(t, got, 1)
	assertTimeNear(t, base.Add(time.Second), got[0].Timestamp, time.Millisecond)
	assert.Equal(t, UsedPeakRSSI, got[0].ModeUsed)
	assert.Equal(t, 5, got[0].SampleCount)
	assert.Equal(t, testTag, got[0].TagID)
}

func TestPeakRSSIBelowMinSamplesFallsBackToLastSeen(t *testing.T) {
	offsets := []float64{0.2, 0.9, 0.6, 1.4}
	run := func(cfg Config) CrossingEvent {
		h := newHarness(t, cfg)
		for _, off := range offsets {
			h.read(testTag, seconds(off), -50-off)
		}
		h.clock.Advance(cfg.Window)
		h.sweep()
		got := h.crossings()
		require.Len(t, got, 1)
		return got[0]
	}

	peak := run(Config{Mode: PeakRSSI, Window: 2 * time.Second, Cooldown: time.Second, MinSamplesForRegression: 5})
	last := run(Config{Mode: LastSeen, Window: 2 * time.Second, Cooldown: time.Second})

	assert.Equal(t, UsedLastSeenFallback, peak.ModeUsed)
	assert.Equal(t, last.Timestamp, peak.Timestamp)
	assert.Equal(t, base.Add(seconds(1.4)), peak.Timestamp)
	assert.Equal(t, 4, peak.SampleCount)
}

func TestPeakRSSINoInteriorMaximumUsesStrongestSample(t *testing.T) {
	h := newHarness(t, Config{Mode: PeakRSSI, Window: 3 * time.Second, Cooldown: 5 * time.Second, MinSamplesForRegression: 3})

	// still accelerating toward the antenna when the window closes
	for i, rssi := range []float64{-70, -69, -67, -63, -57} {
		h.read(testTag, seconds(float64(i)*0.4), rssi)
	}
	h.clock.Advance(3 * time.Second)
	h.sweep()

	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, UsedPeakRSSIMaxSample, got[0].ModeUsed)
	assert.Equal(t, base.Add(seconds(1.6)), got[0].Timestamp)
	assert.InDelta(t, -57, got[0].RSSI, floatPrecision)
}

func TestPeakRSSIClampsVertexToSampledInterval(t *testing.T) {
	h := newHarness(t, Config{Mode: PeakRSSI, Window: 3 * time.Second, Cooldown: 5 * time.Second, MinSamplesForRegression: 3})

	// concave down but peaking at 3s, after the last sample
	for x := 0.0; x <= 1.0; x += 0.25 {
		h.read(testTag, seconds(x), -40-2*(x-3)*(x-3))
	}
	h.clock.Advance(3 * time.Second)
	h.sweep()

	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, UsedPeakRSSI, got[0].ModeUsed)
	assertTimeNear(t, base.Add(time.Second), got[0].Timestamp, time.Microsecond)
}

func TestPeakRSSISingularFitFallsBack(t *testing.T) {
	h := newHarness(t, Config{Mode: PeakRSSI, Window: 3 * time.Second, Cooldown: 5 * time.Second, MinSamplesForRegression: 3})

	// a reader without per-read timestamps batches reads at one instant
	for _, rssi := range []float64{-60, -52, -58, -55} {
		h.read(testTag, 0, rssi)
	}
	h.clock.Advance(3 * time.Second)
	h.sweep()

	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, UsedLastSeenFallback, got[0].ModeUsed)
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, int64(1), h.counter("Detection.Crossing.LastSeen-Fallback"))
}

func TestCooldownIdempotence(t *testing.T) {
	cooldown := 5 * time.Second
	h := newHarness(t, Config{Mode: FirstSeen, Window: time.Second, Cooldown: cooldown})

	h.read(testTag, 0, -50)
	require.Len(t, h.crossings(), 1)
	emittedAt := h.clock.Now()

	for h.clock.Now().Before(emittedAt.Add(cooldown - 250*time.Millisecond)) {
		h.clock.Advance(250 * time.Millisecond)
		h.read(testTag, h.clock.Now().Sub(base), -50)
		h.sweep()
	}
	h.clock.Advance(249 * time.Millisecond)
	h.read(testTag, h.clock.Now().Sub(base), -50)
	require.Empty(t, h.crossings(), "no crossing inside the cooldown")

	h.clock.Advance(2 * time.Millisecond)
	h.read(testTag, h.clock.Now().Sub(base), -50)
	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, h.clock.Now(), got[0].Timestamp)
}

func TestCooldownIsPerTimingPoint(t *testing.T) {
	h := newHarness(t, Config{Mode: FirstSeen, Window: time.Second, Cooldown: time.Minute})
	require.NoError(t, h.Configure("start", Config{Mode: FirstSeen, Window: time.Second, Cooldown: time.Minute}))

	h.read(testTag, 0, -50)
	h.route(tagevent.TagEvent{TagID: testTag, Timestamp: base, TimingPointID: "start"})
	h.read(testTag, time.Second, -50)

	got := h.crossings()
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"start", testTimingPoint}, []string{got[0].TimingPointID, got[1].TimingPointID})
}

func TestCooldownAppliesAfterBufferedWindow(t *testing.T) {
	h := newHarness(t, Config{Mode: LastSeen, Window: time.Second, Cooldown: 5 * time.Second})

	h.read(testTag, 0, -50)
	h.clock.Advance(time.Second)
	// expired but not yet swept: the late read closes it and is then suppressed
	h.read(testTag, time.Second, -50)

	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, 1, got[0].SampleCount)

	status := h.TimingPoints()
	require.Len(t, status, 1)
	assert.Zero(t, status[0].OpenBuffers)
	assert.Equal(t, 1, status[0].Cooldowns)

	h.clock.Advance(5 * time.Second)
	h.sweep()
	assert.Zero(t, h.TimingPoints()[0].Cooldowns, "sweep evicts lapsed cooldowns")
}

func TestConfigureDrainsUnderOldConfig(t *testing.T) {
	h := newHarness(t, Config{Mode: LastSeen, Window: 10 * time.Second, Cooldown: 5 * time.Second})

	h.read(testTag, 0, -60)
	h.read(testTag, seconds(0.5), -50)
	h.read("OTHER", seconds(0.2), -50)

	require.NoError(t, h.Configure(testTimingPoint, Config{Mode: FirstSeen, Window: time.Second, Cooldown: 0}))

	got := h.crossings()
	require.Len(t, got, 2)
	for _, ce := range got {
		assert.Equal(t, UsedLastSeen, ce.ModeUsed, "drained under the old mode")
	}
	assert.Equal(t, "OTHER", got[0].TagID)
	assert.Equal(t, base.Add(seconds(0.5)), got[1].Timestamp)

	cfg, ok := h.Config(testTimingPoint)
	require.True(t, ok)
	assert.Equal(t, FirstSeen, cfg.Mode)

	// the old cooldown still holds for the drained tags
	h.read(testTag, seconds(1), -50)
	assert.Empty(t, h.crossings())

	h.read("NEW", seconds(1), -50)
	got = h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, UsedFirstSeen, got[0].ModeUsed)
}

func TestRemoveFinalizesOpenBuffers(t *testing.T) {
	h := newHarness(t, Config{Mode: PeakRSSI, Window: time.Minute, Cooldown: 5 * time.Second, MinSamplesForRegression: 3})

	h.read(testTag, 0, -60)
	h.read(testTag, seconds(0.5), -50)
	require.NoError(t, h.Remove(testTimingPoint))

	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, UsedLastSeenFallback, got[0].ModeUsed)

	err := h.Remove(testTimingPoint)
	assert.Equal(t, ErrUnknownTimingPoint, errors.Cause(err))
}

func TestRemovedTimingPointRejectsLateEvents(t *testing.T) {
	h := newHarness(t, Config{Mode: PeakRSSI, Window: time.Minute, Cooldown: 5 * time.Second, MinSamplesForRegression: 3})

	// an event looked up before Remove but processed after it
	h.mu.RLock()
	tp := h.points[testTimingPoint]
	h.mu.RUnlock()
	require.NoError(t, h.Remove(testTimingPoint))

	ev := tagevent.TagEvent{TagID: testTag, RSSI: -50, Timestamp: base, ReaderID: "reader-1", TimingPointID: testTimingPoint}
	assert.False(t, h.processOn(tp, ev))
	assert.Empty(t, tp.buffers)
	assert.Empty(t, h.crossings())
}

func TestReconfiguredTimingPointGetsLaterEvents(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	require.NoError(t, h.Remove(testTimingPoint))
	require.NoError(t, h.Configure(testTimingPoint, DefaultConfig()))
	h.read(testTag, 0, -50)

	got := h.crossings()
	require.Len(t, got, 1)
	assert.Equal(t, testTimingPoint, got[0].TimingPointID)
	assert.Equal(t, int64(0), h.counter("Detection.Route.Unconfigured-TimingPoint"))
}

func TestUnconfiguredTimingPointIsDropped(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.route(tagevent.TagEvent{TagID: testTag, Timestamp: base, TimingPointID: "nowhere"})
	assert.Empty(t, h.crossings())
	assert.Equal(t, int64(1), h.counter("Detection.Route.Unconfigured-TimingPoint"))
}

func TestSubmitNeverBlocks(t *testing.T) {
	reg := newTestRegistry()
	m := NewManager(WithQueueSize(2), WithRegistry(reg))

	ev := tagevent.TagEvent{TagID: testTag, TimingPointID: testTimingPoint}
	require.NoError(t, m.Submit(ev))
	require.NoError(t, m.Submit(ev))
	assert.Equal(t, ErrQueueFull, m.Submit(ev))
	assert.Equal(t, int64(1), metrics.GetOrRegisterCounter("Detection.Submit.QueueFull-Error", reg).Count())
}

func TestSweepInterval(t *testing.T) {
	m := NewManager(WithRegistry(newTestRegistry()))
	assert.Equal(t, maxSweepInterval, m.sweepInterval())

	require.NoError(t, m.Configure("a", Config{Mode: FirstSeen, Window: 10 * time.Millisecond}))
	assert.Equal(t, maxSweepInterval, m.sweepInterval(), "first_seen does not buffer")

	require.NoError(t, m.Configure("b", Config{Mode: LastSeen, Window: 400 * time.Millisecond}))
	assert.Equal(t, 100*time.Millisecond, m.sweepInterval())

	require.NoError(t, m.Configure("c", Config{Mode: PeakRSSI, Window: 8 * time.Millisecond, MinSamplesForRegression: 3}))
	assert.Equal(t, minSweepInterval, m.sweepInterval())

	require.NoError(t, m.Configure("d", Config{Mode: LastSeen, Window: time.Hour}))
	assert.Equal(t, minSweepInterval, m.sweepInterval())
}

func TestRunSweepsAndFlushesOnCancel(t *testing.T) {
	m := NewManager(WithRegistry(newTestRegistry()))
	require.NoError(t, m.Configure("short", Config{Mode: LastSeen, Window: 40 * time.Millisecond}))
	require.NoError(t, m.Configure("long", Config{Mode: LastSeen, Window: time.Hour}))
	out, _ := m.Subscribe(10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	now := time.Now()
	require.NoError(t, m.Submit(tagevent.TagEvent{TagID: "A", Timestamp: now, TimingPointID: "short"}))
	require.NoError(t, m.Submit(tagevent.TagEvent{TagID: "A", Timestamp: now.Add(time.Millisecond), TimingPointID: "short"}))
	require.NoError(t, m.Submit(tagevent.TagEvent{TagID: "B", Timestamp: now, TimingPointID: "long"}))

	select {
	case ce := <-out:
		assert.Equal(t, "short", ce.TimingPointID)
		assert.Equal(t, 2, ce.SampleCount)
		assert.True(t, now.Add(time.Millisecond).Equal(ce.Timestamp))
	case <-time.After(2 * time.Second):
		t.Fatal("expected the sweep to close the short window")
	}

	cancel()
	var flushed []CrossingEvent
	for ce := range out {
		flushed = append(flushed, ce)
	}
	<-done

	require.Len(t, flushed, 1, "cancel flushes the long window and closes the channel")
	assert.Equal(t, "long", flushed[0].TimingPointID)
}

func TestConcurrentReadersEmitOncePerTag(t *testing.T) {
	m := NewManager(WithRegistry(newTestRegistry()), WithQueueSize(10000))
	require.NoError(t, m.Configure(testTimingPoint, Config{Mode: FirstSeen, Window: time.Second, Cooldown: time.Hour}))
	out, unsubscribe := m.Subscribe(100)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	const readers, tags, repeats = 4, 25, 20
	var wg sync.WaitGroup
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < repeats; i++ {
				for tag := 0; tag < tags; tag++ {
					assert.NoError(t, m.Submit(tagevent.TagEvent{
						TagID:         fmt.Sprintf("TAG%02d", tag),
						Timestamp:     time.Now(),
						ReaderID:      fmt.Sprintf("reader-%d", r),
						TimingPointID: testTimingPoint,
					}))
				}
			}
		}(r)
	}
	wg.Wait()

	seen := make(map[string]int)
	timeout := time.After(5 * time.Second)
	for len(seen) < tags {
		select {
		case ce := <-out:
			seen[ce.TagID]++
		case <-timeout:
			t.Fatalf("only %d of %d tags crossed", len(seen), tags)
		}
	}
	select {
	case ce := <-out:
		t.Fatalf("duplicate crossing %+v", ce)
	case <-time.After(50 * time.Millisecond):
	}
	for tag, n := range seen {
		assert.Equal(t, 1, n, tag)
	}
}

func TestSlowSubscriberDoesNotBlockRouting(t *testing.T) {
	h := newHarness(t, Config{Mode: FirstSeen, Window: time.Second, Cooldown: time.Minute})
	slow, cancel := h.Subscribe(0)

	const tags = 50
	done := make(chan struct{})
	go func() {
		for i := 0; i < tags; i++ {
			h.read(fmt.Sprintf("TAG%02d", i), 0, -50)
		}
		h.sweep()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("routing blocked on a subscriber that is not reading")
	}
	require.Len(t, h.crossings(), tags)

	for i := 0; i < tags; i++ {
		select {
		case ce := <-slow:
			assert.Equal(t, fmt.Sprintf("TAG%02d", i), ce.TagID)
		case <-time.After(2 * time.Second):
			t.Fatalf("crossing %d was not delivered", i)
		}
	}

	cancel()
	select {
	case _, open := <-slow:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not close the channel")
	}
}

func TestCancelDiscardsQueuedCrossings(t *testing.T) {
	h := newHarness(t, Config{Mode: FirstSeen, Window: time.Second, Cooldown: time.Minute})
	slow, cancel := h.Subscribe(0)

	h.read("A", 0, -50)
	h.read("B", 0, -50)
	cancel()
	h.read("C", 0, -50)

	received := 0
	for range slow {
		received++
	}
	assert.True(t, received <= 1, "got %d crossings after cancel", received)
	require.Len(t, h.crossings(), 3)
}

func TestCrossingEventJSON(t *testing.T) {
	ce := CrossingEvent{
		ID:            "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		TagID:         testTag,
		TimingPointID: testTimingPoint,
		Timestamp:     time.Date(2024, 5, 1, 11, 0, 1, 234567891, time.FixedZone("CEST", 2*60*60)),
		ModeUsed:      UsedPeakRSSI,
		SampleCount:   5,
		RSSI:          -49.5,
		ReaderID:      "reader-1",
	}

	b, err := json.Marshal(ce)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"tag_id": "E20000000000000000000001",
		"timing_point_id": "finish",
		"timestamp": "2024-05-01T09:00:01.234Z",
		"mode_used": "peak_rssi",
		"sample_count": 5,
		"rssi": -49.5,
		"reader_id": "reader-1"
	}`, string(b))

	var back CrossingEvent
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Timestamp.Equal(time.Date(2024, 5, 1, 9, 0, 1, 234000000, time.UTC)))
	assert.Equal(t, UsedPeakRSSI, back.ModeUsed)
}

func TestSampleSetThinsEvenly(t *testing.T) {
	set := newSampleSet(4)
	for i := 0; i < 10; i++ {
		set.add(sample{rssi: float64(i)})
	}

	want := []float64{0, 4, 8}
	held := set.all()
	require.Len(t, held, len(want))
	for i, s := range held {
		if math.Abs(s.rssi-want[i]) > floatPrecision {
			t.Errorf("expected %v at %d, got %v", want[i], i, s.rssi)
		}
	}
	assert.Equal(t, 10, set.received)
}

func TestPeakRSSIWithMoreReadsThanBufferHolds(t *testing.T) {
	h := newHarness(t, Config{Mode: PeakRSSI, Window: 3 * time.Second, Cooldown: 5 * time.Second, MinSamplesForRegression: 3})

	const reads = 3*maxSamplesPerBuffer + 7
	const peak = 0.5
	for i := 0; i < reads; i++ {
		x := 2.0 * float64(i) / reads
		h.read(testTag, seconds(x), -45-8*(x-peak)*(x-peak))
	}
	h.clock.Advance(3 * time.Second)
	h.sweep()

	got := h.crossings()
	require.Len(t, got, 1)
	assertTimeNear(t, base.Add(seconds(peak)), got[0].Timestamp, time.Millisecond)
	assert.Equal(t, UsedPeakRSSI, got[0].ModeUsed)
	assert.True(t, got[0].SampleCount <= maxSamplesPerBuffer, "fitted %d", got[0].SampleCount)
	assert.True(t, got[0].SampleCount >= maxSamplesPerBuffer/2, "fitted %d", got[0].SampleCount)
}
