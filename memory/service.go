package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
)

// Mode names the store currently serving calls.
type Mode int

const (
	// ModeRemote serves calls from the remote backend.
	ModeRemote Mode = iota
	// ModeLocalFallback serves calls from the process-local store.
	ModeLocalFallback
)

func (m Mode) String() string {
	if m == ModeLocalFallback {
		return "local-fallback"
	}
	return "remote"
}

// Remote is a remote memory backend. Ping reports reachability.
type Remote interface {
	core.Memory
	Ping(ctx context.Context) error
}

// Transition describes a mode change.
type Transition struct {
	From  Mode
	To    Mode
	Cause error
}

// Options configure a Service.
type Options struct {
	Remote       Remote
	Local        *LocalStore
	Logger       logging.Logger
	OnTransition func(Transition)
}

// Service implements core.Memory over a remote backend with a local fallback.
// Without a remote it starts, and stays, in ModeLocalFallback.
type Service struct {
	mu           sync.RWMutex
	mode         Mode
	remote       Remote
	local        *LocalStore
	logger       logging.Logger
	onTransition func(Transition)
}

// NewService creates a memory service.
func NewService(optFns ...func(o *Options)) *Service {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Local == nil {
		opts.Local = NewLocalStore(DefaultLocalCap)
	}
	s := &Service{
		mode:         ModeRemote,
		remote:       opts.Remote,
		local:        opts.Local,
		logger:       core.EnsureLogger(opts.Logger),
		onTransition: opts.OnTransition,
	}
	if s.remote == nil {
		s.mode = ModeLocalFallback
	}
	return s
}

// Mode returns the mode serving calls.
func (s *Service) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Local returns the fallback store.
func (s *Service) Local() *LocalStore { return s.local }

// AddMemory stores turn for userID.
func (s *Service) AddMemory(ctx context.Context, userID string, turn core.Turn) error {
	if remote := s.activeRemote(); remote != nil {
		err := remote.AddMemory(ctx, userID, turn)
		if err == nil {
			return nil
		}
		s.fallback(err)
	}
	return s.local.AddMemory(ctx, userID, turn)
}

// GetMemory returns up to limit recent turns for userID, oldest first.
func (s *Service) GetMemory(ctx context.Context, userID string, limit int) ([]core.Turn, error) {
	if remote := s.activeRemote(); remote != nil {
		turns, err := remote.GetMemory(ctx, userID, limit)
		if err == nil {
			return turns, nil
		}
		s.fallback(err)
	}
	return s.local.GetMemory(ctx, userID, limit)
}

// SearchMemory returns up to limit turns of userID containing query.
func (s *Service) SearchMemory(ctx context.Context, userID, query string, limit int) ([]core.Turn, error) {
	if remote := s.activeRemote(); remote != nil {
		turns, err := remote.SearchMemory(ctx, userID, query, limit)
		if err == nil {
			return turns, nil
		}
		s.fallback(err)
	}
	return s.local.SearchMemory(ctx, userID, query, limit)
}

// Reconnect pings the remote and switches back to ModeRemote when it
// answers. Turns written while in fallback stay local.
func (s *Service) Reconnect(ctx context.Context) error {
	if s.remote == nil {
		return errors.New("no remote memory configured")
	}
	if err := s.remote.Ping(ctx); err != nil {
		return fmt.Errorf("remote memory unreachable: %w", err)
	}
	s.transition(ModeRemote, nil)
	return nil
}

func (s *Service) activeRemote() Remote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == ModeRemote {
		return s.remote
	}
	return nil
}

func (s *Service) fallback(cause error) {
	s.transition(ModeLocalFallback, cause)
}

func (s *Service) transition(to Mode, cause error) {
	s.mu.Lock()
	from := s.mode
	s.mode = to
	s.mu.Unlock()
	if from == to {
		return
	}

	if cause != nil {
		s.logger.Warn("memory.mode.transition", "from", from.String(), "to", to.String(), "error", cause)
	} else {
		s.logger.Info("memory.mode.transition", "from", from.String(), "to", to.String())
	}
	if s.onTransition != nil {
		s.onTransition(Transition{From: from, To: to, Cause: cause})
	}
}
