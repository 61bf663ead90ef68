// Package eduswarm provides a façade over the orchestrator for embedding the
// learning swarm in a Go program. Most applications:
//  1. create a Swarm via New() (in-memory storage and memory, mock model by
//     default)
//  2. start a session for a learner
//  3. send messages with Ask (synchronous) or ProcessUserMessage
//     (asynchronous, answers arrive as agent:response events)
//
// Production deployments supply a durable core.Storage, a remote-backed
// memory.Service and a real model.Provider.
package eduswarm

import (
	"context"
	"sync"

	"github.com/hupe1980/eduswarm/catalog"
	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/memory"
	"github.com/hupe1980/eduswarm/model"
	"github.com/hupe1980/eduswarm/orchestrator"
	"github.com/hupe1980/eduswarm/storage/inmemory"
	"github.com/hupe1980/eduswarm/swarm"
	"github.com/hupe1980/eduswarm/tool"
)

// Options configures a Swarm.
type Options struct {
	// Storage defaults to an in-memory store.
	Storage core.Storage
	// Memory defaults to a local-only memory.Service.
	Memory core.Memory
	// Provider backs the language model. Defaults to model.MockProvider.
	Provider model.Provider
	// Researcher backs the search and research tools. Without it they fail
	// with NOT_CONFIGURED.
	Researcher tool.Researcher
	// Avatars backs generateAvatarResponse.
	Avatars tool.AvatarGenerator
	// Catalog defaults to catalog.Default().
	Catalog *catalog.Catalog
	// MaxRounds bounds model round trips per response.
	MaxRounds int
	// MemoryLimit bounds the turns fed to the model per response.
	MemoryLimit int
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// Swarm wraps an orchestrator wired with a model service and the
// educational tools.
type Swarm struct {
	*orchestrator.Orchestrator
	tools *tool.Registry
}

// New creates a Swarm. Any unset collaborator is replaced by its in-memory
// or mock implementation.
func New(optFns ...func(o *Options)) *Swarm {
	opts := Options{
		Storage:     inmemory.New(),
		Memory:      memory.NewService(),
		Provider:    model.NewMockProvider("mock"),
		Catalog:     catalog.Default(),
		MaxRounds:   5,
		MemoryLimit: 10,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := tool.NewRegistry(opts.Logger, tool.NewEducationalTools(func(o *tool.EducationOptions) {
		o.Researcher = opts.Researcher
		o.Avatars = opts.Avatars
	})...)
	llm := model.NewService(opts.Provider, func(o *model.Options) {
		o.MaxRounds = opts.MaxRounds
		o.Tools = registry
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(func(o *orchestrator.Options) {
		o.Storage = opts.Storage
		o.Memory = opts.Memory
		o.Model = llm
		o.Catalog = opts.Catalog
		o.Tools = registry
		o.MemoryLimit = opts.MemoryLimit
		o.Logger = opts.Logger
	})
	return &Swarm{Orchestrator: orch, tools: registry}
}

// Tools returns the tool registry attached to model calls.
func (s *Swarm) Tools() *tool.Registry { return s.tools }

// Ask queues message and blocks until the queue has drained. It returns
// every agent:response event emitted while waiting, in emission order.
func (s *Swarm) Ask(ctx context.Context, message string, opts orchestrator.MessageOptions) ([]swarm.Event, error) {
	var (
		mu        sync.Mutex
		responses []swarm.Event
	)
	id := s.Subscribe(swarm.EventAgentResponse, func(ev swarm.Event) {
		mu.Lock()
		responses = append(responses, ev)
		mu.Unlock()
	})
	defer s.Off(swarm.EventAgentResponse, id)

	if _, err := s.ProcessUserMessage(ctx, message, opts); err != nil {
		return nil, err
	}
	if err := s.WaitIdle(ctx); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]swarm.Event(nil), responses...), nil
}
