// Package topic classifies response text into educational domains and maps
// domains to the agent best suited to them. Both tables are data; the
// defaults can be replaced from the agent catalog.
package topic

import "strings"

// DefaultAgent is recommended for domains without a mapping.
const DefaultAgent = "main"

// Domain is one educational domain with its trigger keywords and the agent
// recommended for it.
type Domain struct {
	Name     string   `toml:"name" json:"name"`
	Keywords []string `toml:"keywords" json:"keywords"`
	Agent    string   `toml:"agent,omitempty" json:"agent,omitempty"`
}

// DefaultDomains is the built-in keyword table.
func DefaultDomains() []Domain {
	return []Domain{
		{Name: "science", Agent: "science", Keywords: []string{"science", "biology", "chemistry", "physics", "experiment", "hypothesis", "atoms", "molecules", "ecosystem"}},
		{Name: "math", Agent: "science", Keywords: []string{"math", "mathematics", "algebra", "geometry", "calculus", "equation", "number", "fraction", "decimal"}},
		{Name: "history", Agent: "critical_thinking", Keywords: []string{"history", "ancient", "civilization", "empire", "war", "revolution", "king", "queen", "president"}},
		{Name: "literature", Agent: "creativity", Keywords: []string{"literature", "book", "story", "novel", "character", "plot", "author", "read", "write", "poetry"}},
		{Name: "arts", Agent: "creativity", Keywords: []string{"art", "music", "painting", "drawing", "sculpture", "instrument", "creativity", "imagination"}},
		{Name: "technology", Agent: "science", Keywords: []string{"technology", "computer", "code", "programming", "software", "hardware", "internet", "digital"}},
	}
}

// Extractor matches lower-cased text against keyword substrings.
type Extractor struct {
	domains []Domain
	agents  map[string]string
}

// NewExtractor builds an extractor over domains; nil or empty uses DefaultDomains.
func NewExtractor(domains []Domain) *Extractor {
	if len(domains) == 0 {
		domains = DefaultDomains()
	}
	e := &Extractor{agents: make(map[string]string, len(domains))}
	for _, d := range domains {
		kws := make([]string, 0, len(d.Keywords))
		for _, kw := range d.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		e.domains = append(e.domains, Domain{Name: d.Name, Keywords: kws, Agent: d.Agent})
		if d.Agent != "" {
			e.agents[d.Name] = d.Agent
		}
	}
	return e
}

// Extract returns every domain with at least one keyword in text, once each,
// in table order.
func (e *Extractor) Extract(text string) []string {
	lower := strings.ToLower(text)
	var topics []string
	for _, d := range e.domains {
		for _, kw := range d.Keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, d.Name)
				break
			}
		}
	}
	return topics
}

// Recommend returns the agent mapped to topic, or DefaultAgent.
func (e *Extractor) Recommend(topic string) string {
	if agent, ok := e.agents[topic]; ok {
		return agent
	}
	return DefaultAgent
}

// Domains returns a copy of the table.
func (e *Extractor) Domains() []Domain {
	out := make([]Domain, len(e.domains))
	for i, d := range e.domains {
		out[i] = Domain{Name: d.Name, Agent: d.Agent, Keywords: append([]string(nil), d.Keywords...)}
	}
	return out
}
