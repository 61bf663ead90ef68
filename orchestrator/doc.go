// Package orchestrator implements the swarm Orchestrator Core: the session
// lifecycle, the event bus surface and the serialized message-processing
// queue that feeds the agent manager.
//
// Lifecycle:
//
//	uninitialized -> initialized -> session-active -> session-ended -> initialized
//
// Exactly one session is active per Orchestrator. ProcessUserMessage is
// fire-and-forget: it records the user_message node, enqueues a task and
// returns; answers arrive as agent:response events. Tasks are drained by a
// single goroutine in FIFO order, so responses are emitted in enqueue order.
package orchestrator
