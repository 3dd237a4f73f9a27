package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/repo"
	"github.com/tbourn/go-dating-realtime/internal/repo/repotest"
)

func TestConversationStart(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()

	m := repotest.Match(t, e.db, "A", "C", domain.MatchMutual)
	conv, created, err := e.convs.Start(ctx, "A", m.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, conv.Participants, 2)

	again, created, err := e.convs.Start(ctx, "C", m.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	_, _, err = e.convs.Start(ctx, "B", m.ID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	_, _, err = e.convs.Start(ctx, "A", "missing")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestConversationStart_Guards(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()

	pending := repotest.Match(t, e.db, "A", "D", domain.MatchPending)
	_, _, err := e.convs.Start(ctx, "A", pending.ID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	m := repotest.Match(t, e.db, "A", "E", domain.MatchMutual)
	_, err = e.blocks.Block(ctx, "E", "A", "", nil)
	require.NoError(t, err)
	_, _, err = e.convs.Start(ctx, "A", m.ID)
	assert.Equal(t, apperr.BlockedByPolicy, apperr.KindOf(err))
}

func TestConversationSoftDelete(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()
	e.send(t, "A", "hello")

	require.NoError(t, e.convs.SoftDelete(ctx, e.conv.ID, "A"))
	items, total, err := e.convs.ListPage(ctx, "A", 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	_, total, err = e.convs.ListPage(ctx, "B", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	require.NoError(t, e.convs.SoftDelete(ctx, e.conv.ID, "B"))
	c, err := repo.GetConversation(ctx, e.db, e.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationDeleted, c.Status)

	assert.Equal(t, apperr.Forbidden, apperr.KindOf(e.convs.SoftDelete(ctx, e.conv.ID, "Z")))
}

func TestConversationMuteSuppressesPush(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()
	require.NoError(t, e.convs.SetMuted(ctx, e.conv.ID, "B", true))
	e.router.Unregister(e.b)
	e.send(t, "A", "are you there?")
	assert.Empty(t, e.pushes.all())
}
