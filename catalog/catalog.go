// Package catalog holds the agent catalog: one system prompt plus display
// information per agent, and the topic tables used for classification.
// Catalogs are stored as TOML.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/eduswarm/topic"
	"github.com/pelletier/go-toml/v2"
)

// Agent describes one agent persona.
type Agent struct {
	ID          string `toml:"id" json:"id"`
	Name        string `toml:"name" json:"name"`
	Description string `toml:"description" json:"description"`
	AvatarID    string `toml:"avatar_id,omitempty" json:"avatar_id,omitempty"`
	Prompt      string `toml:"prompt" json:"-"`
}

// Catalog is the configured set of agents and topic domains.
type Catalog struct {
	Agents []Agent        `toml:"agents"`
	Topics []topic.Domain `toml:"topics"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{
		Agents: []Agent{
			{
				ID:          "main",
				Name:        "Main Guide",
				Description: "I'll help you navigate the platform",
				AvatarID:    "avatar_1",
				Prompt: "You are the main onboarding assistant for an AI education platform designed for children. " +
					"You help guide users to the appropriate specialized educational agents and provide general platform assistance. " +
					"You can suggest appropriate educational topics based on the child's age and interests.",
			},
			{
				ID:          "science",
				Name:        "Science Explorer",
				Description: "Let's discover how things work",
				AvatarID:    "avatar_2",
				Prompt: "You are a specialized science education agent for children. " +
					"You make complex scientific concepts accessible and engaging. " +
					"You use simple language and examples that children can understand.",
			},
			{
				ID:          "creativity",
				Name:        "Creative Coach",
				Description: "Let's make something amazing",
				AvatarID:    "avatar_3",
				Prompt: "You are a specialized creative arts education agent for children. " +
					"You encourage artistic expression, storytelling, and imagination. " +
					"You suggest activities that develop creative thinking.",
			},
			{
				ID:          "critical_thinking",
				Name:        "Thinking Guide",
				Description: "Let's solve problems together",
				AvatarID:    "avatar_4",
				Prompt: "You are a specialized critical thinking education agent for children. " +
					"You help develop logical reasoning, problem-solving, and analytical skills. " +
					"You pose thought-provoking questions and puzzles appropriate for children.",
			},
		},
		Topics: topic.DefaultDomains(),
	}
}

// Parse decodes a TOML catalog. Missing topics fall back to the defaults.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(c.Topics) == 0 {
		c.Topics = topic.DefaultDomains()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses the catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Save writes the catalog to path as TOML.
func (c *Catalog) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// Validate rejects catalogs without agents or with duplicate identifiers.
func (c *Catalog) Validate() error {
	if len(c.Agents) == 0 {
		return errors.New("catalog has no agents")
	}
	seen := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return errors.New("catalog agent without id")
		}
		if _, ok := seen[a.ID]; ok {
			return fmt.Errorf("duplicate catalog agent %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// Prompts maps agent id to system prompt for agents that have one.
func (c *Catalog) Prompts() map[string]string {
	out := make(map[string]string, len(c.Agents))
	for _, a := range c.Agents {
		if a.Prompt != "" {
			out[a.ID] = a.Prompt
		}
	}
	return out
}

// Agent looks up an agent by id.
func (c *Catalog) Agent(id string) (Agent, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// Extractor builds a topic extractor from the catalog's topic table.
func (c *Catalog) Extractor() *topic.Extractor {
	return topic.NewExtractor(c.Topics)
}
