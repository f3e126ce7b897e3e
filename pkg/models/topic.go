package models

import "time"

// TopicDetails describes one conversation topic of the structured plan
type TopicDetails struct {
	Title               string `json:"title" yaml:"title"`
	EstimatedMinutes    int    `json:"estimatedMinutes" yaml:"estimated_minutes"`
	RecommendedSessions int    `json:"recommendedSessions" yaml:"recommended_sessions"`
	Description         string `json:"description" yaml:"description"`
}

// TopicTimeTracking accumulates practice on one topic index
type TopicTimeTracking struct {
	TopicIndex        int       `json:"topicIndex"`
	TimeSpentMinutes  int       `json:"timeSpentMinutes"`
	SessionsCompleted int       `json:"sessionsCompleted"`
	LastSessionDate   time.Time `json:"lastSessionDate"`
}

// StructuredPlanProgress is the learner's position in the topic plan
type StructuredPlanProgress struct {
	CurrentTopicIndex       int                       `json:"currentTopicIndex"`
	TopicsCompleted         []string                  `json:"topicsCompleted"`
	TotalSessions           int                       `json:"totalSessions"`
	TimeTracking            map[int]TopicTimeTracking `json:"timeTracking"`
	CurrentSessionStartTime *time.Time                `json:"currentSessionStartTime,omitempty"`
	LastSessionDate         time.Time                 `json:"lastSessionDate"`
}

// TopicStats is the readiness summary of the current topic
type TopicStats struct {
	SessionsCompleted   int  `json:"sessionsCompleted"`
	SessionsRecommended int  `json:"sessionsRecommended"`
	SessionsProgress    int  `json:"sessionsProgress"`
	TimeSpent           int  `json:"timeSpent"`
	TimeEstimated       int  `json:"timeEstimated"`
	TimeProgress        int  `json:"timeProgress"`
	IsReady             bool `json:"isReady"`
	RemainingSessions   int  `json:"remainingSessions"`
	RemainingMinutes    int  `json:"remainingMinutes"`
}
