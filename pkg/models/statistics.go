package models

// UserStats is the assessed proficiency of a learner
type UserStats struct {
	Grammar       int   `json:"grammar"`       // 0-100
	Vocabulary    int   `json:"vocabulary"`    // 0-100
	Communication int   `json:"communication"` // 0-100
	Level         Level `json:"level"`
	TotalTurns    int   `json:"totalTurns"`
}
