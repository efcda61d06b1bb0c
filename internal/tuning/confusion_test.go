package tuning

import (
	"math"
	"testing"
)

func TestConfusionCounts_Add(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		truth, detected int
		want            ConfusionCounts
	}{
		{name: "miss", truth: 3, detected: 1, want: ConfusionCounts{TruePositives: 1, FalseNegatives: 2, TotalInstances: 3, TotalDetected: 1}},
		{name: "exact", truth: 2, detected: 2, want: ConfusionCounts{TruePositives: 2, TotalInstances: 2, TotalDetected: 2}},
		{name: "false alarm", truth: 0, detected: 2, want: ConfusionCounts{FalsePositives: 2, TotalDetected: 2}},
		{name: "excess", truth: 1, detected: 3, want: ConfusionCounts{TruePositives: 1, FalsePositives: 2, TotalInstances: 1, TotalDetected: 3}},
		{name: "nothing", truth: 0, detected: 0, want: ConfusionCounts{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var c ConfusionCounts
			c.Add(tt.truth, tt.detected)
			if c != tt.want {
				t.Errorf("Add(%d, %d) = %+v, want %+v", tt.truth, tt.detected, c, tt.want)
			}
		})
	}
}

func TestConfusionCounts_Accumulates(t *testing.T) {
	t.Parallel()
	var c ConfusionCounts
	c.Add(2, 1)
	c.Add(1, 1)
	c.Add(0, 2)
	want := ConfusionCounts{TruePositives: 2, FalsePositives: 2, FalseNegatives: 1, TotalInstances: 3, TotalDetected: 4}
	if c != want {
		t.Fatalf("counts = %+v, want %+v", c, want)
	}
	if c.Precision() != 0.5 {
		t.Errorf("Precision = %v, want 0.5", c.Precision())
	}
	if math.Abs(c.Recall()-2.0/3.0) > 1e-12 {
		t.Errorf("Recall = %v, want 2/3", c.Recall())
	}
	if math.Abs(c.F1()-4.0/7.0) > 1e-12 {
		t.Errorf("F1 = %v, want 4/7", c.F1())
	}
}

func TestConfusionCounts_F1Bounds(t *testing.T) {
	t.Parallel()
	for tp := 0; tp <= 8; tp++ {
		for fp := 0; fp <= 8; fp++ {
			for fn := 0; fn <= 8; fn++ {
				c := ConfusionCounts{TruePositives: tp, FalsePositives: fp, FalseNegatives: fn}
				f1 := c.F1()
				if math.IsNaN(f1) || f1 < 0 || f1 > 1 {
					t.Fatalf("F1(tp=%d fp=%d fn=%d) = %v outside [0,1]", tp, fp, fn, f1)
				}
				if tp == 0 && f1 != 0 {
					t.Fatalf("F1(tp=0 fp=%d fn=%d) = %v, want 0", fp, fn, f1)
				}
			}
		}
	}
}

func TestConfusionCounts_ZeroDenominators(t *testing.T) {
	t.Parallel()
	var c ConfusionCounts
	if c.Precision() != 0 || c.Recall() != 0 || c.F1() != 0 {
		t.Errorf("empty counts: p=%v r=%v f1=%v, want zeros", c.Precision(), c.Recall(), c.F1())
	}
}

func TestConfusionCounts_Trial(t *testing.T) {
	t.Parallel()
	c := ConfusionCounts{TruePositives: 9, FalsePositives: 1, FalseNegatives: 1}
	tr := c.Trial("NAOMI", -3)
	if tr.Keyword != "NAOMI" || tr.Threshold != -3 {
		t.Errorf("trial identity = %s@%d", tr.Keyword, tr.Threshold)
	}
	if math.Abs(tr.F1-0.9) > 1e-12 || math.Abs(tr.Precision-0.9) > 1e-12 || math.Abs(tr.Recall-0.9) > 1e-12 {
		t.Errorf("trial metrics = %+v, want 0.9 each", tr)
	}
}

func TestOccurrences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		transcript, keyword string
		want                int
	}{
		{"Hey Naomi, what time is it naomi", "NAOMI", 2},
		{"nothing here", "NAOMI", 0},
		{"", "NAOMI", 0},
		{"naomi", "", 0},
		{"HEY COMPUTER hey computer", "hey computer", 2},
	}
	for _, tt := range tests {
		if got := Occurrences(tt.transcript, tt.keyword); got != tt.want {
			t.Errorf("Occurrences(%q, %q) = %d, want %d", tt.transcript, tt.keyword, got, tt.want)
		}
	}
}
