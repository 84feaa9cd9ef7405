package grading

import (
	"math"
	"testing"

	"github.com/volatiletech/null/v8"
)

func score(v float64) null.Float64 { return null.Float64From(v) }

func activities(scores ...null.Float64) []ActivityScore {
	acts := make([]ActivityScore, 0, len(scores))
	for _, s := range scores {
		acts = append(acts, ActivityScore{Score: s})
	}
	return acts
}

func Test_AccumulatedTotal(t *testing.T) {
	conf := DefaultConfig()

	tests := []struct {
		name       string
		activities []ActivityScore
		want       null.Float64
	}{
		{name: "no entries", activities: nil, want: null.Float64{}},
		{name: "empty slice", activities: []ActivityScore{}, want: null.Float64{}},
		{name: "all null scores", activities: activities(null.Float64{}, null.Float64{}), want: null.Float64{}},
		{name: "single score", activities: activities(score(30)), want: score(30)},
		{name: "null entries ignored, not zeroed", activities: activities(null.Float64{}, score(20), null.Float64{}), want: score(20)},
		{name: "zero achieved is data", activities: activities(score(0)), want: score(0)},
		{name: "sum clamped to max", activities: activities(score(30), score(25)), want: score(50)},
		{name: "negative score treated as absent", activities: activities(score(-5), score(10)), want: score(10)},
		{name: "NaN treated as absent", activities: activities(score(math.NaN()), score(15)), want: score(15)},
		{name: "entries beyond slot count ignored", activities: activities(score(10), score(10), score(10), score(10), score(10), score(10)), want: score(50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AccumulatedTotal(tt.activities, conf); got != tt.want {
				t.Errorf("AccumulatedTotal() = %v; want %v", got, tt.want)
			}
		})
	}
}

func Test_PartialTotal(t *testing.T) {
	conf := DefaultConfig()

	tests := []struct {
		name string
		ps   PartialScores
		want null.Float64
	}{
		{name: "no data at all", ps: PartialScores{}, want: null.Float64{}},
		{
			name: "activities + exam",
			ps:   PartialScores{Activities: activities(score(40)), Exam: ExamScore{Score: score(45)}},
			want: score(85),
		},
		{
			name: "exam only, accumulated counts as 0",
			ps:   PartialScores{Exam: ExamScore{Score: score(45)}},
			want: score(45),
		},
		{
			name: "activities only, exam counts as 0",
			ps:   PartialScores{Activities: activities(score(35))},
			want: score(35),
		},
		{
			name: "accumulated clamped before summing",
			ps:   PartialScores{Activities: activities(score(45), score(45)), Exam: ExamScore{Score: score(45)}},
			want: score(95),
		},
		{
			name: "total clamped to aggregate ceiling",
			ps:   PartialScores{Activities: activities(score(50)), Exam: ExamScore{Score: score(90)}},
			want: score(100),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PartialTotal(tt.ps, conf); got != tt.want {
				t.Errorf("PartialTotal() = %v; want %v", got, tt.want)
			}
		})
	}
}

func Test_PartialTotals(t *testing.T) {
	conf := DefaultConfig()
	grades := map[int]PartialScores{
		1: {Activities: activities(score(40)), Exam: ExamScore{Score: score(45)}},
		3: {Exam: ExamScore{Score: score(70)}},
	}

	got := PartialTotals(grades, conf)
	want := []null.Float64{score(85), {}, score(70)}
	if len(got) != len(want) {
		t.Fatalf("PartialTotals() returned %d totals; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PartialTotals()[%d] = %v; want %v", i, got[i], want[i])
		}
	}
}

func Test_FinalGrade(t *testing.T) {
	conf := DefaultConfig() // 3 partials

	tests := []struct {
		name     string
		partials []null.Float64
		conf     Config
		want     null.Float64
	}{
		{name: "one partial missing", partials: []null.Float64{score(85), {}, score(70)}, conf: conf, want: null.Float64{}},
		{name: "fewer totals than partials", partials: []null.Float64{score(85), score(90)}, conf: conf, want: null.Float64{}},
		{name: "all present", partials: []null.Float64{score(85), score(90), score(70)}, conf: conf, want: score((85 + 90 + 70) / 3.0)},
		{
			name:     "single partial degrades to its total",
			partials: []null.Float64{score(88)},
			conf:     Config{NumberOfPartials: 1, MaxAccumulatedTotal: 50, MaxExamTotal: 50, PassingGrade: 70},
			want:     score(88),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FinalGrade(tt.partials, tt.conf); got != tt.want {
				t.Errorf("FinalGrade() = %v; want %v", got, tt.want)
			}
		})
	}
}

func Test_Classify(t *testing.T) {
	conf := DefaultConfig()

	tests := []struct {
		name  string
		total null.Float64
		want  Classification
	}{
		{name: "null is not gradable", total: null.Float64{}, want: NotGradable},
		{name: "at threshold passes", total: score(70), want: Passing},
		{name: "above threshold passes", total: score(81.666), want: Passing},
		{name: "below threshold fails", total: score(69.99), want: Failing},
		{name: "zero is failing, not n/a", total: score(0), want: Failing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.total, conf); got != tt.want {
				t.Errorf("Classify() = %v; want %v", got, tt.want)
			}
		})
	}
}

// Aggregation is a pure function: re-running it on unchanged input must yield
// identical output.
func Test_Aggregation_idempotence(t *testing.T) {
	conf := DefaultConfig()
	ps := PartialScores{
		Activities: activities(score(12), null.Float64{}, score(30.5)),
		Exam:       ExamScore{Score: score(41)},
	}

	first := PartialTotal(ps, conf)
	for i := 0; i < 3; i++ {
		if got := PartialTotal(ps, conf); got != first {
			t.Fatalf("PartialTotal() run %d = %v; want %v", i+2, got, first)
		}
	}
}
