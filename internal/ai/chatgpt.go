package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/example/fluentbuddy/pkg/models"
	"github.com/sashabaranov/go-openai"
)

// Turns of history sent with each assessment
const assessmentWindow = 6

// Roles of a conversation turn
const (
	RoleUser  = "user"
	RoleCoach = "model"
)

// DefaultModel is used when no model is configured
const DefaultModel = openai.GPT4oMini

// Turn is one transcribed utterance of the conversation
type Turn struct {
	Role string
	Text string
}

// Assessment is a proficiency estimate derived from recent conversation
type Assessment struct {
	Grammar       int          `json:"grammar"`
	Vocabulary    int          `json:"vocabulary"`
	Communication int          `json:"communication"`
	Level         models.Level `json:"level"`
	Reasoning     string       `json:"reasoning"`
}

// Assessor estimates the learner's level from conversation history
type Assessor interface {
	Assess(ctx context.Context, history []Turn) (Assessment, error)
}

// Config configures the ChatGPT assessor
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ChatGPT assesses conversations with the OpenAI chat completion API
type ChatGPT struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// New creates a new ChatGPT assessor
func New(cfg Config) (*ChatGPT, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is not set")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &ChatGPT{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		maxTokens:   300,
		temperature: 0.2,
	}, nil
}

// Assess sends the latest turns with the assessment prompt and parses the JSON verdict
func (c *ChatGPT) Assess(ctx context.Context, history []Turn) (Assessment, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are an experienced English examiner grading learners against the CEFR scale."},
			{Role: openai.ChatMessageRoleUser, Content: AssessmentPrompt(history)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Assessment{}, fmt.Errorf("failed to send assessment request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Assessment{}, fmt.Errorf("no response choices returned")
	}
	return ParseAssessment(resp.Choices[0].Message.Content)
}

// AssessmentPrompt renders the last turns of history into the examiner prompt
func AssessmentPrompt(history []Turn) string {
	if len(history) > assessmentWindow {
		history = history[len(history)-assessmentWindow:]
	}
	lines := make([]string, len(history))
	for i, t := range history {
		lines[i] = fmt.Sprintf("%s: %s", strings.ToUpper(t.Role), t.Text)
	}

	return fmt.Sprintf(`Analyze the following English conversation history between a student (User) and a teacher.
History:
%s

Evaluate the User's English level based on CEFR standards (A1 to C2) and provide scores (0-100) for three categories.
Consider:
1. Grammar: Accuracy and complexity of structures.
2. Vocabulary: Range and appropriateness.
3. Communication: Fluency, coherence, and ability to convey ideas.

Return ONLY a JSON object:
{
  "grammar": number,
  "vocabulary": number,
  "communication": number,
  "level": "A1" | "A2" | "B1" | "B2" | "C1" | "C2",
  "reasoning": "Brief one sentence explanation of the level"
}`, strings.Join(lines, "\n"))
}

// ParseAssessment decodes a model reply, tolerating a markdown code fence around the JSON
func ParseAssessment(content string) (Assessment, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	// models sometimes answer with fractional scores
	var raw struct {
		Grammar       float64 `json:"grammar"`
		Vocabulary    float64 `json:"vocabulary"`
		Communication float64 `json:"communication"`
		Level         string  `json:"level"`
		Reasoning     string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return Assessment{}, fmt.Errorf("failed to decode assessment: %w", err)
	}
	level, err := models.ParseLevel(raw.Level)
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{
		Grammar:       clampScore(raw.Grammar),
		Vocabulary:    clampScore(raw.Vocabulary),
		Communication: clampScore(raw.Communication),
		Level:         level,
		Reasoning:     raw.Reasoning,
	}, nil
}

func clampScore(v float64) int {
	return max(0, min(100, int(math.Round(v))))
}
