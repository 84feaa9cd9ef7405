package grading

import (
	"math"

	"github.com/volatiletech/null/v8"
)

// MaxAccumulatedActivities is the number of coursework slots per partial.
// Entries beyond this count never contribute to a total.
const MaxAccumulatedActivities = 5

type (
	// Config holds an institution's grading settings. It is loaded once per
	// session and treated as immutable for the duration of an aggregation pass.
	Config struct {
		NumberOfPartials    int     `json:"number_of_partials"`
		MaxActivityScore    float64 `json:"max_activity_score"`
		MaxAccumulatedTotal float64 `json:"max_accumulated_total"`
		MaxExamTotal        float64 `json:"max_exam_total"`
		PassingGrade        float64 `json:"passing_grade"`
	}

	ActivityScore struct {
		Name  null.String  `json:"name"`
		Score null.Float64 `json:"score"`
	}

	ExamScore struct {
		Name  null.String  `json:"name"`
		Score null.Float64 `json:"score"`
	}

	// PartialScores holds the raw scores recorded within one grading period.
	PartialScores struct {
		Activities []ActivityScore `json:"activities"`
		Exam       ExamScore       `json:"exam"`
	}
)

func DefaultConfig() Config {
	return Config{
		NumberOfPartials:    3,
		MaxActivityScore:    50,
		MaxAccumulatedTotal: 50,
		MaxExamTotal:        50,
		PassingGrade:        70,
	}
}

// Classification buckets a total against the passing threshold.
// NotGradable means "no data yet"; it must never be rendered as 0.
type Classification string

const (
	Passing     Classification = "passing"
	Failing     Classification = "failing"
	NotGradable Classification = "n/a"
)

// validScore reports whether a score carries usable data. Grade entry is
// incremental: malformed and absent entries are tolerated as "no data",
// never treated as 0-with-data nor as an error.
func validScore(s null.Float64) bool {
	return s.Valid && !math.IsNaN(s.Float64) && !math.IsInf(s.Float64, 0) && s.Float64 >= 0
}

// AccumulatedTotal sums the valid scores among the first
// MaxAccumulatedActivities entries, clamped to conf.MaxAccumulatedTotal.
// It is null when no activity has a usable score.
func AccumulatedTotal(activities []ActivityScore, conf Config) null.Float64 {
	if len(activities) > MaxAccumulatedActivities {
		activities = activities[:MaxAccumulatedActivities]
	}

	var sum float64
	var found bool
	for _, act := range activities {
		if !validScore(act.Score) {
			continue
		}
		sum += act.Score.Float64
		found = true
	}
	if !found {
		return null.Float64{}
	}
	if sum > conf.MaxAccumulatedTotal {
		sum = conf.MaxAccumulatedTotal
	}
	return null.Float64From(sum)
}

// PartialTotal combines the accumulated total with the exam score. It is null
// when both components are absent; otherwise a missing component counts as 0.
// The result is clamped to conf.MaxAccumulatedTotal + conf.MaxExamTotal: the
// engine, not input validation, is the final defense against an oversized
// displayed total.
func PartialTotal(ps PartialScores, conf Config) null.Float64 {
	accumulated := AccumulatedTotal(ps.Activities, conf)
	exam := ps.Exam.Score
	if !accumulated.Valid && !validScore(exam) {
		return null.Float64{}
	}

	var sum float64
	if accumulated.Valid {
		sum += accumulated.Float64
	}
	if validScore(exam) {
		sum += exam.Float64
	}
	if max := conf.MaxAccumulatedTotal + conf.MaxExamTotal; sum > max {
		sum = max
	}
	return null.Float64From(sum)
}

// PartialTotals computes the total of every configured partial, in order.
// Index 0 holds partial 1. Partials with no recorded scores are null.
func PartialTotals(grades map[int]PartialScores, conf Config) []null.Float64 {
	totals := make([]null.Float64, conf.NumberOfPartials)
	for i := range totals {
		if ps, ok := grades[i+1]; ok {
			totals[i] = PartialTotal(ps, conf)
		}
	}
	return totals
}

// FinalGrade is the arithmetic mean of all partial totals. It is only defined
// when every configured partial (1..conf.NumberOfPartials) has a non-null
// total; otherwise it is null.
func FinalGrade(partialTotals []null.Float64, conf Config) null.Float64 {
	if conf.NumberOfPartials < 1 || len(partialTotals) < conf.NumberOfPartials {
		return null.Float64{}
	}

	var sum float64
	for _, total := range partialTotals[:conf.NumberOfPartials] {
		if !total.Valid {
			return null.Float64{}
		}
		sum += total.Float64
	}
	return null.Float64From(sum / float64(conf.NumberOfPartials))
}

// Classify buckets a (partial or final) total against conf.PassingGrade.
func Classify(total null.Float64, conf Config) Classification {
	if !total.Valid {
		return NotGradable
	}
	if total.Float64 >= conf.PassingGrade {
		return Passing
	}
	return Failing
}
