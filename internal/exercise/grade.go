package exercise

import (
	"math/rand"
	"strings"

	"github.com/example/fluentbuddy/pkg/models"
)

// blank replaces the answer inside a context sentence
const blank = "_______"

// Presentation is an exercise prepared for display
type Presentation struct {
	Exercise models.Exercise
	// Question text, with the answer blanked out for context exercises
	Text    string
	Options []string
	// Word tiles for reorder/build exercises
	Words []string
}

// Grade checks an answer: case-insensitive after trimming. Writing exercises are always accepted.
func Grade(ex models.Exercise, answer string) bool {
	if ex.Type == models.ExerciseWriting {
		return true
	}
	return normalize(answer) == normalize(ex.CorrectAnswer)
}

// JoinWords builds the answer of a reorder/build exercise from the selected tiles
func JoinWords(words []string) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, " ")
}

// WordCount counts whitespace separated words of a written answer
func WordCount(answer string) int {
	return len(strings.Fields(answer))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Present prepares an exercise for display, shuffling options and tiles with rnd
func Present(ex models.Exercise, rnd *rand.Rand) Presentation {
	p := Presentation{
		Exercise: ex,
		Text:     ex.Question,
		Options:  shuffled(ex.Options, rnd),
		Words:    shuffled(ex.Words, rnd),
	}
	if ex.Type == models.ExerciseContext && ex.Content != "" {
		p.Text = ex.Question + "\n" + replaceWithBlank(ex.Content, ex.CorrectAnswer)
	}
	return p
}

func shuffled(in []string, rnd *rand.Rand) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	rnd.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// replaceWithBlank blanks the first case-insensitive occurrence of word,
// appending a blank when the word does not occur
func replaceWithBlank(sentence, word string) string {
	if word == "" {
		return sentence
	}
	idx := strings.Index(strings.ToLower(sentence), strings.ToLower(word))
	if idx < 0 {
		return sentence + " " + blank
	}
	return sentence[:idx] + blank + sentence[idx+len(word):]
}
