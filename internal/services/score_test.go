package services

import "testing"

func TestAdjustScore(t *testing.T) {
	cases := []struct {
		raw      int
		reverse  bool
		min, max int
		want     float64
	}{
		{1, false, 1, 5, 1},
		{5, false, 1, 5, 5},
		{1, true, 1, 5, 5},
		{2, true, 1, 5, 4},
		{3, true, 1, 5, 3},
		{5, true, 1, 5, 1},
		{0, true, 1, 5, 5},  // clamped up
		{9, true, 1, 5, 1},  // clamped down
		{1, true, 1, 7, 7},
		{7, true, 1, 7, 1},
	}
	for _, c := range cases {
		if got := AdjustScore(c.raw, c.reverse, c.min, c.max); got != c.want {
			t.Fatalf("AdjustScore(%d,%v,%d,%d)=%v, want %v", c.raw, c.reverse, c.min, c.max, got, c.want)
		}
	}
}

func TestAdjustScoreDoubleReversalIsIdentity(t *testing.T) {
	for raw := 1; raw <= 5; raw++ {
		once := AdjustScore(raw, true, 1, 5)
		twice := AdjustScore(int(once), true, 1, 5)
		if twice != float64(raw) {
			t.Fatalf("double reversal of %d gave %v", raw, twice)
		}
	}
}
