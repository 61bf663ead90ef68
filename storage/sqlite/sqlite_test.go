package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/eduswarm/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ core.Storage         = (*Store)(nil)
	_ core.GraphReader     = (*Store)(nil)
	_ core.NodeDeactivator = (*Store)(nil)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "eduswarm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Ping(ctx))

	rec, err := s.CreateSession(ctx, "u1", "main")
	require.NoError(t, err)
	assert.Equal(t, core.SessionActive, rec.Status)

	ended, err := s.EndSession(ctx, rec.ID, "covered photosynthesis", []string{"science", "arts"})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, ended.ID)
	assert.Equal(t, core.SessionCompleted, ended.Status)
	assert.Equal(t, "covered photosynthesis", ended.Summary)
	assert.Equal(t, []string{"science", "arts"}, ended.TopicsCovered)
	require.NotNil(t, ended.EndTime)
	assert.Equal(t, "main", ended.PrimaryAgentID)

	_, err = s.EndSession(ctx, "missing", "", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_NodesAndConnections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.CreateSession(ctx, "u1", "main")
	require.NoError(t, err)

	user, err := s.CreateNode(ctx, rec.ID, "u1", core.NodeUserMessage, "Tell me about photosynthesis", map[string]any{"agentId": "main"})
	require.NoError(t, err)
	prompt, err := s.CreateNode(ctx, rec.ID, "u1", core.NodeAgentPrompt, "Tell me about photosynthesis", nil)
	require.NoError(t, err)
	resp, err := s.CreateNode(ctx, rec.ID, "u1", core.NodeAgentResponse, "Plants use light", nil)
	require.NoError(t, err)

	_, err = s.CreateNode(ctx, "no-session", "u1", core.NodeUserMessage, "x", nil)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.ConnectNodes(ctx, user.ID, prompt.ID, core.EdgeContext, core.ContextStrength, nil)
	require.NoError(t, err)
	_, err = s.ConnectNodes(ctx, prompt.ID, resp.ID, core.EdgeResponse, core.ResponseStrength, map[string]any{"agentId": "main"})
	require.NoError(t, err)

	_, err = s.ConnectNodes(ctx, user.ID, prompt.ID, core.EdgeDirect, 0.5, nil)
	assert.ErrorIs(t, err, core.ErrDuplicateEdge)
	_, err = s.ConnectNodes(ctx, user.ID, "ghost", core.EdgeDirect, 0.5, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.ConnectNodes(ctx, resp.ID, user.ID, core.EdgeDirect, 2, nil)
	assert.Error(t, err)

	edges, err := s.ConnectedEdges(ctx, prompt.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, resp.ID, edges[0].TargetID)
	assert.Equal(t, core.EdgeResponse, edges[0].Type)
	assert.InDelta(t, 1.0, edges[0].Strength, 1e-9)
	assert.Equal(t, "main", edges[0].Metadata["agentId"])

	nodes, err := s.SessionNodes(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, []string{user.ID, prompt.ID, resp.ID}, []string{nodes[0].ID, nodes[1].ID, nodes[2].ID})
	assert.Equal(t, "main", nodes[0].Metadata["agentId"])

	require.NoError(t, s.DeactivateNode(ctx, user.ID))
	nodes, err = s.SessionNodes(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	assert.ErrorIs(t, s.DeactivateNode(ctx, "ghost"), core.ErrNotFound)
}

func TestStore_RecentSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.CreateSession(ctx, "u1", "main")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	_, err := s.CreateSession(ctx, "u2", "science")
	require.NoError(t, err)

	recent, err := s.RecentSessions(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)

	all, err := s.RecentSessions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "eduswarm.db")

	s, err := Open(path)
	require.NoError(t, err)
	rec, err := s.CreateSession(ctx, "u1", "main")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	recent, err := s.RecentSessions(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, rec.ID, recent[0].ID)
}
