package models

import "time"

// ReviewItem is the spaced repetition state of one requirement or exercise
type ReviewItem struct {
	ItemID       string    `json:"itemId"`
	LastReviewed time.Time `json:"lastReviewed"`
	NextReview   time.Time `json:"nextReview"`
	Interval     float64   `json:"interval"`   // in the scheduler's unit (days or hours)
	EaseFactor   float64   `json:"easeFactor"` // never below 1.3
	Repetitions  int       `json:"repetitions"`
}
