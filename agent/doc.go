// Package agent implements the Agent Manager: the activation lifecycle of
// catalog agents inside the active session and response generation. The
// package concentrates on three concerns:
//
//  1. Lifecycle: ActivateAgent / DeactivateAgent with graph provenance
//  2. Response generation: prompt assembly from system prompt, recent
//     memory and the user turn, one LanguageModel call, graph recording
//  3. Topic bookkeeping and the topic->agent recommendation table
//
// Design principles:
//   - State lives in swarm.State, owned by the orchestrator; the manager
//     only holds a reference to it
//   - Collaborators (Storage, Memory, LanguageModel) are injected and
//     narrow
//   - Degradation over failure: memory and storage hiccups are logged and
//     tolerated wherever a sensible default exists
package agent
