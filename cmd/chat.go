package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/orchestrator"
	"github.com/hupe1980/eduswarm/swarm"
	"github.com/spf13/cobra"
)

const chatHelp = `commands:
  /agents          list agents and their status
  /activate <id>   activate an agent
  /ask <id> <msg>  send a message to a specific active agent
  /graph           show thought graph size
  /quit            end the session`

func newChatCmd(ro *rootOptions) *cobra.Command {
	var userID, agentID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive learning session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(ro.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.logger.Warn("chat.close", "error", err)
				}
			}()
			return runChat(cmd, a.orch, userID, agentID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "learner", "learner id")
	cmd.Flags().StringVar(&agentID, "agent", "", "primary agent (defaults to orchestrator.default_agent)")
	return cmd
}

func runChat(cmd *cobra.Command, orch *orchestrator.Orchestrator, userID, agentID string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	snap, err := orch.StartSession(ctx, userID, agentID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s started with %s (type /help for commands)\n", snap.ID, snap.PrimaryAgentID)

	orch.On(swarm.EventAgentResponse, func(ev swarm.Event) {
		fmt.Fprintf(out, "[%s] %s\n", ev.AgentID, ev.Content)
	})
	orch.On(swarm.EventTaskError, func(ev swarm.Event) {
		fmt.Fprintf(out, "error: %s\n", ev.Error)
	})

	send := func(message string, opts orchestrator.MessageOptions) error {
		if _, err := orch.ProcessUserMessage(ctx, message, opts); err != nil {
			return err
		}
		return orch.WaitIdle(ctx)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := send(line, orchestrator.MessageOptions{}); err != nil {
				return err
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit", "/exit":
			return endChat(cmd, orch)
		case "/help":
			fmt.Fprintln(out, chatHelp)
		case "/agents":
			printAgents(out, orch)
		case "/activate":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: /activate <id>")
				continue
			}
			if err := orch.ActivateAgent(ctx, fields[1], core.EdgeDirect, ""); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		case "/ask":
			if len(fields) < 3 {
				fmt.Fprintln(out, "usage: /ask <id> <message>")
				continue
			}
			message := strings.Join(fields[2:], " ")
			if err := send(message, orchestrator.MessageOptions{AgentID: fields[1]}); err != nil {
				return err
			}
		case "/graph":
			g := orch.Graph()
			fmt.Fprintf(out, "nodes: %d connections: %d\n", len(g.Nodes), len(g.Connections))
		default:
			fmt.Fprintf(out, "unknown command %s\n", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return endChat(cmd, orch)
}

func printAgents(out io.Writer, orch *orchestrator.Orchestrator) {
	status := map[string]swarm.AgentStatus{}
	for _, a := range orch.Agents() {
		status[a.ID] = a.Status
	}
	for _, info := range orch.Catalog().Agents {
		fmt.Fprintf(out, "%-20s %-8s %s\n", info.ID, status[info.ID], info.Name)
	}
}

func endChat(cmd *cobra.Command, orch *orchestrator.Orchestrator) error {
	snap, err := orch.EndSession(cmd.Context(), "")
	if err != nil {
		return err
	}
	topics := "none"
	if len(snap.TopicsCovered) > 0 {
		topics = strings.Join(snap.TopicsCovered, ", ")
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "session ended, topics covered: %s\n", topics)
	return err
}
