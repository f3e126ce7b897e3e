package models

// LearningRequirement is a named learning objective within a level and category
type LearningRequirement struct {
	ID          string   `json:"id" yaml:"id"`
	Category    Category `json:"category" yaml:"category"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Examples    []string `json:"examples,omitempty" yaml:"examples"`
}

// LevelRequirements is the catalog entry for one CEFR level
type LevelRequirements struct {
	Level        Level                 `json:"level" yaml:"level"`
	DisplayName  string                `json:"displayName" yaml:"display_name"`
	Description  string                `json:"description" yaml:"description"`
	Requirements []LearningRequirement `json:"requirements" yaml:"requirements"`
}

// CategoryProgress is the completion summary of one category
type CategoryProgress struct {
	Category   Category `json:"category"`
	Completed  int      `json:"completed"`
	Total      int      `json:"total"`
	Percentage int      `json:"percentage"`
}
