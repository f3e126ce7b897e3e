package spaced_repetition

import (
	"math"
	"time"

	"github.com/example/fluentbuddy/pkg/models"
)

// QualityResponse represents the quality of response in SM-2
type QualityResponse int

const (
	// Complete blackout, unable to recall
	QualityBlackout QualityResponse = 0
	// Incorrect response but remembered upon seeing the correct answer
	QualityIncorrect QualityResponse = 1
	// Incorrect response but the correct answer felt familiar
	QualityIncorrectFamiliar QualityResponse = 2
	// Correct response but required significant effort
	QualityCorrectDifficult QualityResponse = 3
	// Correct response after some hesitation
	QualityCorrectHesitation QualityResponse = 4
	// Perfect response with no hesitation
	QualityPerfect QualityResponse = 5
)

// Clamp limits q to the 0..5 scale
func (q QualityResponse) Clamp() QualityResponse {
	if q < QualityBlackout {
		return QualityBlackout
	}
	if q > QualityPerfect {
		return QualityPerfect
	}
	return q
}

// EaseRule computes the next ease factor before bounds are applied
type EaseRule func(ease float64, q QualityResponse, passed bool) float64

// SM2Ease is the classic SuperMemo-2 ease update
func SM2Ease(ease float64, q QualityResponse, _ bool) float64 {
	d := 5.0 - float64(q)
	return ease + (0.1 - d*(0.08+d*0.02))
}

// StepEase adds up on a pass and subtracts down on a failure
func StepEase(up, down float64) EaseRule {
	return func(ease float64, _ QualityResponse, passed bool) float64 {
		if passed {
			return ease + up
		}
		return ease - down
	}
}

// Outcome is a fixed schedule assigned on an item's first graded exposure
type Outcome struct {
	Interval    float64
	EaseFactor  float64
	Repetitions int
}

// Policy parametrizes the SM-2 family of schedulers
type Policy struct {
	Name string
	// Unit of Interval
	Unit time.Duration
	// Answers at or above PassThreshold count as recalled
	PassThreshold QualityResponse
	// Schedule of a freshly added item
	InitialInterval float64
	InitialEase     float64
	// Ease bounds; MaxEase 0 means unbounded
	MinEase float64
	MaxEase float64
	// Steps[i] is the interval after the (i+1)th consecutive pass
	Steps []float64
	// Interval after a failed review
	LapseInterval float64
	Ease          EaseRule
	// Past the steps the interval grows by the ease before the update instead of after it
	GrowWithPreviousEase bool
	RoundInterval        bool
	// When set, an item seen for the first time is graded straight into one of these
	FirstPass *Outcome
	FirstFail *Outcome
}

// RequirementPolicy is day-granularity SM-2 for learning requirements
func RequirementPolicy() Policy {
	return Policy{
		Name:            "requirement",
		Unit:            24 * time.Hour,
		PassThreshold:   QualityCorrectDifficult,
		InitialInterval: 1,
		InitialEase:     2.5,
		MinEase:         1.3,
		Steps:           []float64{1, 6},
		LapseInterval:   1,
		Ease:            SM2Ease,
		RoundInterval:   true,
	}
}

// ExercisePolicy is hour-granularity scheduling for practice exercises
func ExercisePolicy() Policy {
	return Policy{
		Name:                 "exercise",
		Unit:                 time.Hour,
		PassThreshold:        QualityCorrectDifficult,
		InitialInterval:      4,
		InitialEase:          2.0,
		MinEase:              1.3,
		MaxEase:              2.5,
		Steps:                []float64{4, 24},
		LapseInterval:        0.5,
		Ease:                 StepEase(0.1, 0.2),
		GrowWithPreviousEase: true,
		FirstPass:            &Outcome{Interval: 4, EaseFactor: 2.0, Repetitions: 1},
		FirstFail:            &Outcome{Interval: 0.5, EaseFactor: 1.3, Repetitions: 0},
	}
}

// Duration converts an interval in policy units to a time.Duration
func (p Policy) Duration(interval float64) time.Duration {
	return time.Duration(interval * float64(p.Unit))
}

// New returns the schedule of a freshly added item
func (p Policy) New(id string, now time.Time) models.ReviewItem {
	return p.at(models.ReviewItem{
		ItemID:     id,
		Interval:   p.InitialInterval,
		EaseFactor: p.InitialEase,
	}, now)
}

// Review grades an item. prev is nil when the item has never been seen.
func (p Policy) Review(id string, prev *models.ReviewItem, q QualityResponse, now time.Time) models.ReviewItem {
	q = q.Clamp()
	passed := q >= p.PassThreshold

	if prev == nil {
		first := p.FirstFail
		if passed {
			first = p.FirstPass
		}
		if first == nil {
			return p.New(id, now)
		}
		return p.at(models.ReviewItem{
			ItemID:      id,
			Interval:    first.Interval,
			EaseFactor:  first.EaseFactor,
			Repetitions: first.Repetitions,
		}, now)
	}

	next := *prev
	next.ItemID = id
	next.EaseFactor = p.boundEase(p.Ease(prev.EaseFactor, q, passed))

	if !passed {
		next.Repetitions = 0
		next.Interval = p.LapseInterval
		return p.at(next, now)
	}

	next.Repetitions = prev.Repetitions + 1
	if next.Repetitions <= len(p.Steps) {
		next.Interval = p.Steps[next.Repetitions-1]
	} else {
		growth := next.EaseFactor
		if p.GrowWithPreviousEase {
			growth = prev.EaseFactor
		}
		next.Interval = prev.Interval * growth
		if p.RoundInterval {
			next.Interval = math.Round(next.Interval)
		}
	}
	return p.at(next, now)
}

func (p Policy) boundEase(e float64) float64 {
	if e < p.MinEase {
		e = p.MinEase
	}
	if p.MaxEase > 0 && e > p.MaxEase {
		e = p.MaxEase
	}
	return e
}

func (p Policy) at(item models.ReviewItem, now time.Time) models.ReviewItem {
	item.LastReviewed = now
	item.NextReview = now.Add(p.Duration(item.Interval))
	return item
}
