package clockcfg

import (
	"testing"
	"time"
)

func TestFakeClockAdvanceAndSet(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewFakeClock(base)
	if !c.Now().Equal(base) {
		t.Fatalf("Now() = %v, want %v", c.Now(), base)
	}
	c.Advance(5 * time.Minute)
	want := base.Add(5 * time.Minute)
	if !c.Now().Equal(want) {
		t.Fatalf("after Advance, Now() = %v, want %v", c.Now(), want)
	}
	other := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(other)
	if !c.Now().Equal(other) {
		t.Fatalf("after Set, Now() = %v, want %v", c.Now(), other)
	}
}

func TestStartOfNextHourUTC(t *testing.T) {
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{
			now:  time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC),
			want: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		},
		{
			// exactly on the hour boundary still advances to the next hour
			now:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		},
		{
			// rolls over midnight correctly
			now:  time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC),
			want: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		got := StartOfNextHourUTC(tc.now)
		if !got.Equal(tc.want) {
			t.Errorf("StartOfNextHourUTC(%v) = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestSystemClockMonotonic(t *testing.T) {
	c := SystemClock{}
	first := c.Now()
	time.Sleep(time.Millisecond)
	second := c.Now()
	if !second.After(first) {
		t.Error("SystemClock.Now() should advance with real time")
	}
}
