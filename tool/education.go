package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Educational tool names.
const (
	SearchEducationalContent = "searchEducationalContent"
	ResearchTopic            = "researchTopic"
	GenerateAvatarResponse   = "generateAvatarResponse"
	GenerateUIComponent      = "generateUIComponent"
)

// Age groups understood by the research tools.
var AgeGroups = []string{"young", "middle", "teen"}

// DefaultAgeGroup is used when a call omits ageGroup.
const DefaultAgeGroup = "middle"

// Researcher answers search and research requests for the educational tools.
type Researcher interface {
	Search(ctx context.Context, query string, maxTokens int) (string, error)
	Research(ctx context.Context, topic, ageGroup string) (string, error)
}

// AvatarRequest asks for a spoken avatar video.
type AvatarRequest struct {
	Text     string `json:"text"`
	AvatarID string `json:"avatarId"`
	VoiceID  string `json:"voiceId,omitempty"`
	Style    string `json:"style,omitempty"`
}

// AvatarVideo identifies a generated avatar video.
type AvatarVideo struct {
	VideoID  string `json:"videoId"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// AvatarGenerator renders avatar videos.
type AvatarGenerator interface {
	GenerateVideo(ctx context.Context, req AvatarRequest) (AvatarVideo, error)
}

// QuizQuestion is one multiple choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Flashcard is a two-sided card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// TimelineEvent is one entry on a timeline.
type TimelineEvent struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Component describes an interactive learning component for a client to
// render.
type Component struct {
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Content   string          `json:"content,omitempty"`
	Questions []QuizQuestion  `json:"questions,omitempty"`
	Cards     []Flashcard     `json:"cards,omitempty"`
	Events    []TimelineEvent `json:"events,omitempty"`
}

// ContentResult is returned by the search and research tools.
type ContentResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// EducationOptions supplies the providers behind the educational tools. A nil
// provider makes its tools fail with NOT_CONFIGURED.
type EducationOptions struct {
	Researcher Researcher
	Avatars    AvatarGenerator
}

// NewEducationalTools returns the educational tool catalog.
func NewEducationalTools(optFns ...func(o *EducationOptions)) []Tool {
	opts := EducationOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	ageGroup := map[string]any{
		"type":        "string",
		"enum":        AgeGroups,
		"description": "Target age group: young (5-8), middle (9-12), teen (13-16)",
	}

	search := NewFunctionTool(
		SearchEducationalContent,
		"Search for educational content on a specific topic",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":     map[string]any{"type": "string", "description": "The search query"},
				"ageGroup":  ageGroup,
				"maxTokens": map[string]any{"type": "integer", "description": "Maximum number of tokens for the response"},
			},
			"required": []string{"query"},
		},
		func(tc *Context, args map[string]any) (any, error) {
			if opts.Researcher == nil {
				return nil, NewToolError(SearchEducationalContent, "no research provider configured", CodeNotConfigured)
			}
			query, _ := args["query"].(string)
			maxTokens := 500
			if v, ok := args["maxTokens"].(float64); ok && v > 0 {
				maxTokens = int(v)
			}
			content, err := opts.Researcher.Search(tc, query, maxTokens)
			if err != nil {
				return nil, err
			}
			return ContentResult{Success: true, Content: content}, nil
		},
	)

	research := NewFunctionTool(
		ResearchTopic,
		"Research a topic in depth and provide structured educational content",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic":    map[string]any{"type": "string", "description": "The topic to research"},
				"ageGroup": ageGroup,
			},
			"required": []string{"topic"},
		},
		func(tc *Context, args map[string]any) (any, error) {
			if opts.Researcher == nil {
				return nil, NewToolError(ResearchTopic, "no research provider configured", CodeNotConfigured)
			}
			topic, _ := args["topic"].(string)
			group, _ := args["ageGroup"].(string)
			if group == "" {
				group = DefaultAgeGroup
			}
			content, err := opts.Researcher.Research(tc, topic, group)
			if err != nil {
				return nil, err
			}
			return ContentResult{Success: true, Content: content}, nil
		},
	)

	avatar := NewFunctionTool(
		GenerateAvatarResponse,
		"Generate a video response with an AI avatar",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":     map[string]any{"type": "string", "description": "The text for the avatar to speak"},
				"avatarId": map[string]any{"type": "string", "description": "The ID of the avatar to use"},
				"voiceId":  map[string]any{"type": "string", "description": "The ID of the voice to use"},
				"style": map[string]any{
					"type":        "string",
					"enum":        []string{"normal", "happy", "sad", "surprised", "angry"},
					"description": "The emotional style for the avatar",
				},
			},
			"required": []string{"text", "avatarId"},
		},
		func(tc *Context, args map[string]any) (any, error) {
			if opts.Avatars == nil {
				return nil, NewToolError(GenerateAvatarResponse, "no avatar provider configured", CodeNotConfigured)
			}
			var req AvatarRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}
			if req.Style == "" {
				req.Style = "normal"
			}
			video, err := opts.Avatars.GenerateVideo(tc, req)
			if err != nil {
				return nil, err
			}
			return map[string]any{"success": true, "videoId": video.VideoID, "videoUrl": video.VideoURL}, nil
		},
	)

	ui := NewFunctionTool(
		GenerateUIComponent,
		"Generate an interactive UI component",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{
					"type":        "string",
					"enum":        []string{"quiz", "flashcards", "timeline", "diagram", "custom"},
					"description": "The type of component to generate",
				},
				"title":   map[string]any{"type": "string", "description": "The title of the component"},
				"content": map[string]any{"type": "string", "description": "The content for the component (for custom components)"},
				"questions": map[string]any{
					"type":        "array",
					"description": "The questions for a quiz component",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"question":      map[string]any{"type": "string", "description": "The question text"},
							"options":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "The answer options"},
							"correctAnswer": map[string]any{"type": "integer", "description": "The index of the correct answer"},
						},
						"required": []string{"question", "options", "correctAnswer"},
					},
				},
				"cards": map[string]any{
					"type":        "array",
					"description": "The cards for a flashcards component",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"front": map[string]any{"type": "string", "description": "The text for the front of the card"},
							"back":  map[string]any{"type": "string", "description": "The text for the back of the card"},
						},
						"required": []string{"front", "back"},
					},
				},
				"events": map[string]any{
					"type":        "array",
					"description": "The events for a timeline component",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"date":        map[string]any{"type": "string", "description": "The date or time period"},
							"title":       map[string]any{"type": "string", "description": "The title of the event"},
							"description": map[string]any{"type": "string", "description": "The description of the event"},
						},
						"required": []string{"date", "title"},
					},
				},
			},
			"required": []string{"type", "title"},
		},
		func(_ *Context, args map[string]any) (any, error) {
			var c Component
			if err := decodeArgs(args, &c); err != nil {
				return nil, err
			}
			if err := checkComponent(c); err != nil {
				return nil, err
			}
			return c, nil
		},
	)

	return []Tool{search, research, avatar, ui}
}

func checkComponent(c Component) error {
	missing := ""
	switch c.Type {
	case "quiz":
		if len(c.Questions) == 0 {
			missing = "questions"
		}
		for i, q := range c.Questions {
			if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
				return NewToolError(GenerateUIComponent, fmt.Sprintf("question %d: correctAnswer out of range", i), CodeValidation)
			}
		}
	case "flashcards":
		if len(c.Cards) == 0 {
			missing = "cards"
		}
	case "timeline":
		if len(c.Events) == 0 {
			missing = "events"
		}
	case "diagram", "custom":
		if c.Content == "" {
			missing = "content"
		}
	}
	if missing != "" {
		return NewToolError(GenerateUIComponent, fmt.Sprintf("%s component requires %s", c.Type, missing), CodeValidation)
	}
	return nil
}

// decodeArgs round-trips validated arguments into a typed struct.
func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
