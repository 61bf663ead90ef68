package testutil

import (
	"github.com/hupe1980/eduswarm/catalog"
	"github.com/hupe1980/eduswarm/topic"
)

// CatalogBuilder helps construct agent catalogs with fluent chaining.
// Example:
//
//	cat := NewCatalogBuilder().Agent("main", "You teach.").Build()
type CatalogBuilder struct {
	agents []catalog.Agent
	topics []topic.Domain
}

// NewCatalogBuilder creates an empty builder. Build falls back to the
// default topic tables when no Topic was added.
func NewCatalogBuilder() *CatalogBuilder { return &CatalogBuilder{} }

// Agent appends an agent with the given prompt (chainable).
func (b *CatalogBuilder) Agent(id, prompt string) *CatalogBuilder {
	b.agents = append(b.agents, catalog.Agent{ID: id, Name: id, Prompt: prompt})
	return b
}

// Topic appends a topic domain (chainable).
func (b *CatalogBuilder) Topic(name, agent string, keywords ...string) *CatalogBuilder {
	b.topics = append(b.topics, topic.Domain{Name: name, Agent: agent, Keywords: keywords})
	return b
}

// Build returns the catalog.
func (b *CatalogBuilder) Build() *catalog.Catalog {
	topics := b.topics
	if len(topics) == 0 {
		topics = topic.DefaultDomains()
	}
	return &catalog.Catalog{
		Agents: append([]catalog.Agent(nil), b.agents...),
		Topics: topics,
	}
}
