package orchestrator

import (
	"context"
	"time"

	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/swarm"
)

// enqueue appends t and starts the drain goroutine unless one is running.
func (o *Orchestrator) enqueue(ctx context.Context, t Task) {
	o.mu.Lock()
	o.queue = append(o.queue, t)
	if o.draining {
		o.mu.Unlock()
		return
	}
	o.draining = true
	o.idle = make(chan struct{})
	o.mu.Unlock()

	go o.drain(ctx)
}

// drain processes queued tasks one at a time until the queue is empty.
func (o *Orchestrator) drain(ctx context.Context) {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.draining = false
			close(o.idle)
			o.mu.Unlock()
			return
		}
		t := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		o.process(ctx, t)
	}
}

// Pending returns the number of queued tasks not yet dequeued.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// WaitIdle blocks until the queue is drained or ctx is done.
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	o.mu.Lock()
	if !o.draining {
		o.mu.Unlock()
		return nil
	}
	idle := o.idle
	o.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) process(ctx context.Context, t Task) {
	if !o.state.IsCurrent(t.SessionID) {
		o.logger.Debug("task.skip", "task", t.ID, "reason", "session ended")
		return
	}

	agentID := o.targetAgent(t)
	start := time.Now()

	var contextNodes []string
	if t.NodeID != "" {
		contextNodes = []string{t.NodeID}
	}

	o.mu.Lock()
	m := o.manager
	o.mu.Unlock()

	resp := m.GenerateResponse(ctx, agentID, t.Message, contextNodes, t.Options.ResponseOptions)
	_, userID, _ := o.state.SessionID()
	logging.LogTask(logging.ForSession(o.logger, t.SessionID, userID), t.ID, agentID, time.Since(start), resp.Success, resp.Error)
	if resp.Success {
		return
	}

	o.state.EmitCurrent(swarm.Event{
		Name:      swarm.EventTaskError,
		SessionID: t.SessionID,
		AgentID:   agentID,
		TaskID:    t.ID,
		NodeID:    t.NodeID,
		Error:     resp.Error,
		Timestamp: time.Now(),
	})
}

// targetAgent picks the requested agent when it is active, otherwise the
// session's primary agent.
func (o *Orchestrator) targetAgent(t Task) string {
	if id := t.Options.AgentID; id != "" && o.state.IsActive(id) {
		return id
	}
	if snap, ok := o.state.Session(); ok {
		return snap.PrimaryAgentID
	}
	return ""
}
