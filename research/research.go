// Package research queries an online research model (Perplexity by default)
// through its OpenAI-compatible chat completions API. It backs the
// searchEducationalContent and researchTopic tools.
package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/internal/util"
	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/tool"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURL is the Perplexity API endpoint.
const DefaultBaseURL = "https://api.perplexity.ai/"

const (
	searchSystemPrompt   = "You are a research assistant for an educational platform for children. Provide accurate, age-appropriate information."
	researchSystemPrompt = "You are an educational content researcher. Provide accurate, engaging, and age-appropriate information structured in the format requested."
	askSystemPrefix      = "You are an educational assistant helping children learn. "
)

var researchTemplate = `I need to create educational content about "{{.Topic}}" for children. ` +
	`{{.Audience}}` +
	` Please provide: 1) A brief introduction to the topic, 2) 3-5 key points or concepts, ` +
	`3) Real-world examples or applications, 4) 2-3 interesting facts that might surprise children, ` +
	`5) A suggestion for an interactive activity related to this topic.`

var (
	researchAudience = map[string]string{
		"young":  "The content is for children aged 5-8. Focus on basic concepts, use simple language, and include fun facts.",
		"middle": "The content is for children aged 9-12. Include interesting details, examples, and some historical context if relevant.",
		"teen":   "The content is for teenagers aged 13-16. Include more detailed explanations, real-world applications, and thought-provoking questions.",
	}
	askAudience = map[string]string{
		"young":  "Explain concepts in very simple terms suitable for children aged 5-8. Use short sentences and everyday examples.",
		"middle": "Explain concepts clearly for children aged 9-12. Use analogies and examples they can relate to.",
		"teen":   "Provide explanations suitable for teenagers aged 13-16. You can introduce more complex concepts but make them engaging.",
	}
)

// Options configure a Client.
type Options struct {
	APIKey            string
	BaseURL           string
	Model             string
	SearchMaxTokens   int64
	ResearchMaxTokens int64
	Logger            logging.Logger
}

// Client implements tool.Researcher.
type Client struct {
	client *openai.Client
	opts   Options
	logger logging.Logger
}

var _ tool.Researcher = (*Client)(nil)

// New creates a research client.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:           DefaultBaseURL,
		Model:             "sonar",
		SearchMaxTokens:   1000,
		ResearchMaxTokens: 2000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithBaseURL(opts.BaseURL)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Client{client: &client, opts: opts, logger: core.EnsureLogger(opts.Logger)}
}

// Search answers a free-form query. A non-positive maxTokens uses the
// configured default.
func (c *Client) Search(ctx context.Context, query string, maxTokens int) (string, error) {
	limit := c.opts.SearchMaxTokens
	if maxTokens > 0 {
		limit = int64(maxTokens)
	}
	return c.complete(ctx, "search", searchSystemPrompt, query, limit)
}

// Research produces structured educational content about topic for an age
// group (young, middle or teen; anything else is treated as middle).
func (c *Client) Research(ctx context.Context, topic, ageGroup string) (string, error) {
	audience, ok := researchAudience[ageGroup]
	if !ok {
		audience = researchAudience[tool.DefaultAgeGroup]
	}
	prompt, err := util.RenderTemplate(researchTemplate, struct {
		Topic    string
		Audience string
	}{Topic: topic, Audience: audience})
	if err != nil {
		return "", fmt.Errorf("render research prompt: %w", err)
	}
	return c.complete(ctx, "research", researchSystemPrompt, prompt, c.opts.ResearchMaxTokens)
}

// Ask answers a question in language suited to the age group.
func (c *Client) Ask(ctx context.Context, question, ageGroup string) (string, error) {
	audience, ok := askAudience[ageGroup]
	if !ok {
		audience = "Provide clear, engaging explanations with examples."
	}
	return c.complete(ctx, "ask", askSystemPrefix+audience, question, c.opts.SearchMaxTokens)
}

func (c *Client) complete(ctx context.Context, op, system, user string, maxTokens int64) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(maxTokens),
	})
	if err != nil {
		c.logger.Warn("research.error", "op", op, "error", err)
		return "", fmt.Errorf("research api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("research api returned no choices")
	}
	c.logger.Debug("research.done", "op", op, "tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}
