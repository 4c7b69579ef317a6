package ledger

import (
	"testing"
	"time"
)

func TestTimeConversion(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want Time
	}{
		{"ledger epoch", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 0},
		{"one second in", time.Date(2000, 1, 1, 0, 0, 1, 0, time.UTC), 1},
		{"before the epoch clamps to zero", time.Date(1999, 12, 31, 23, 0, 0, 0, time.UTC), 0},
		{"unix epoch clamps to zero", time.Unix(0, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromTime(tt.in); got != tt.want {
				t.Fatalf("got=%d want=%d", got, tt.want)
			}
		})
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 8, 23, 12, 30, 0, 0, time.UTC)
	lt := FromTime(in)
	if got := lt.Std(); !got.Equal(in) {
		t.Fatalf("round trip: got=%v want=%v", got, in)
	}
	if lt.Unix() != in.Unix() {
		t.Fatalf("unix: got=%d want=%d", lt.Unix(), in.Unix())
	}
}

func TestTimeAddAndBefore(t *testing.T) {
	base := Time(1000)
	later := base.Add(65 * time.Second)
	if later != 1065 {
		t.Fatalf("add: got=%d want=1065", later)
	}
	if !base.Before(later) {
		t.Fatalf("base must be before later")
	}
	if later.Before(base) {
		t.Fatalf("later must not be before base")
	}
	if base.Before(base) {
		t.Fatalf("before must be strict")
	}
}
