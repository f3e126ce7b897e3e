package models

import "time"

// ExerciseType selects how an exercise is presented and graded
type ExerciseType string

const (
	ExerciseMultipleChoice ExerciseType = "multiple-choice"
	ExerciseComplete       ExerciseType = "complete"
	ExerciseTranslate      ExerciseType = "translate"
	ExerciseContext        ExerciseType = "context"
	ExerciseReorder        ExerciseType = "reorder"
	ExerciseBuild          ExerciseType = "build"
	ExerciseWriting        ExerciseType = "writing"
)

// Exercise is a static practice item from the exercise bank
type Exercise struct {
	ID             string       `json:"id" yaml:"id"`
	Level          Level        `json:"level" yaml:"level"`
	Category       Category     `json:"category" yaml:"category"`
	Type           ExerciseType `json:"type" yaml:"type"`
	Question       string       `json:"question" yaml:"question"`
	Content        string       `json:"content,omitempty" yaml:"content"`
	Options        []string     `json:"options,omitempty" yaml:"options"`
	Words          []string     `json:"words,omitempty" yaml:"words"` // shuffled tiles for reorder/build
	CorrectAnswer  string       `json:"correctAnswer" yaml:"correct_answer"`
	Explanation    string       `json:"explanation,omitempty" yaml:"explanation"`
	Hint           string       `json:"hint,omitempty" yaml:"hint"`
	Tags           []string     `json:"tags,omitempty" yaml:"tags"`
	SampleAnswer   string       `json:"sampleAnswer,omitempty" yaml:"sample_answer"`
	Criteria       []string     `json:"criteria,omitempty" yaml:"criteria"`
	MinWords       int          `json:"minWords,omitempty" yaml:"min_words"`
	MaxWords       int          `json:"maxWords,omitempty" yaml:"max_words"`
	SuggestedWords []string     `json:"suggestedWords,omitempty" yaml:"suggested_words"`
}

// ExerciseAttempt is one submitted answer; never modified after creation
type ExerciseAttempt struct {
	ExerciseID string    `json:"exerciseId"`
	Timestamp  time.Time `json:"timestamp"`
	Correct    bool      `json:"correct"`
	UserAnswer string    `json:"userAnswer"`
	TimeSpent  int       `json:"timeSpent"` // seconds
}

// ExerciseProgress is the hour-based review state and mastery of one exercise
type ExerciseProgress struct {
	ExerciseID   string            `json:"exerciseId"`
	LastAttempt  time.Time         `json:"lastAttempt"`
	NextReview   time.Time         `json:"nextReview"`
	Interval     float64           `json:"interval"` // hours
	EaseFactor   float64           `json:"easeFactor"`
	Repetitions  int               `json:"repetitions"`
	Attempts     []ExerciseAttempt `json:"attempts"`
	MasteryLevel int               `json:"masteryLevel"` // 0-100
}

// UserExerciseData is the persisted exercise state of one learner
type UserExerciseData struct {
	CurrentLevel       Level                       `json:"currentLevel"`
	ProgressByExercise map[string]ExerciseProgress `json:"progressByExercise"`
	TotalCompleted     int                         `json:"totalCompleted"`
	TotalCorrect       int                         `json:"totalCorrect"`
	Streak             int                         `json:"streak"`
	LastPracticeDate   time.Time                   `json:"lastPracticeDate"`
}
