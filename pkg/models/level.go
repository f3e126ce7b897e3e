package models

import (
	"fmt"
	"strings"
)

// Level is a CEFR proficiency level
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// Levels lists every level from lowest to highest
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// ParseLevel converts user input such as "b1" into a Level
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if l.Index() < 0 {
		return "", fmt.Errorf("unknown CEFR level %q", s)
	}
	return l, nil
}

// Index returns the position of the level in Levels, or -1
func (l Level) Index() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the six CEFR levels
func (l Level) Valid() bool {
	return l.Index() >= 0
}

// Lower is the lowercase form used in requirement ids
func (l Level) Lower() string {
	return strings.ToLower(string(l))
}

// Category groups learning requirements
type Category string

const (
	CategoryVocabulary    Category = "vocabulary"
	CategoryGrammar       Category = "grammar"
	CategoryVerbs         Category = "verbs"
	CategorySpeaking      Category = "speaking"
	CategoryWriting       Category = "writing"
	CategoryPronunciation Category = "pronunciation"
)

// Categories is the fixed category order used in reports
var Categories = []Category{
	CategoryVocabulary,
	CategoryGrammar,
	CategoryVerbs,
	CategorySpeaking,
	CategoryWriting,
	CategoryPronunciation,
}

// IDPrefix is the category segment of a requirement id, e.g. "vocab" in "a1-vocab-numbers"
func (c Category) IDPrefix() string {
	if c == CategoryVocabulary {
		return "vocab"
	}
	return string(c)
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// RequirementID builds the id of the requirement matching a level, category and tag
func RequirementID(level Level, category Category, tag string) string {
	return fmt.Sprintf("%s-%s-%s", level.Lower(), category.IDPrefix(), tag)
}
