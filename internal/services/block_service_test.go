package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
	"github.com/tbourn/go-dating-realtime/internal/domain"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

func TestBlock_SymmetricPredicateAndConversationState(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()

	_, err := e.blocks.Block(ctx, "B", "A", "spam", nil)
	require.NoError(t, err)

	for _, pair := range [][2]string{{"A", "B"}, {"B", "A"}} {
		blocked, err := e.blocks.IsEitherBlocked(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, blocked)
	}
	c, err := repo.GetConversation(ctx, e.db, e.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationBlocked, c.Status)
	assert.True(t, c.Participant("B").IsBlocked)
	assert.False(t, c.Participant("A").IsBlocked)

	require.NoError(t, e.blocks.Unblock(ctx, "B", "A"))
	c, err = repo.GetConversation(ctx, e.db, e.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationActive, c.Status)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(e.blocks.Unblock(ctx, "B", "A")))
}

func TestBlock_MutualBlocksKeepConversationBlocked(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()
	_, err := e.blocks.Block(ctx, "A", "B", "", nil)
	require.NoError(t, err)
	_, err = e.blocks.Block(ctx, "B", "A", "", nil)
	require.NoError(t, err)

	require.NoError(t, e.blocks.Unblock(ctx, "A", "B"))
	c, err := repo.GetConversation(ctx, e.db, e.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationBlocked, c.Status)
}

func TestBlock_ExpiryEndsBlock(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()
	exp := t0.Add(time.Hour)
	_, err := e.blocks.Block(ctx, "A", "B", "", &exp)
	require.NoError(t, err)

	require.Equal(t, apperr.BlockedByPolicy, apperr.KindOf(e.blocks.Check(ctx, "A", "B")))
	e.clk.Advance(time.Hour)
	assert.NoError(t, e.blocks.Check(ctx, "A", "B"))

	list, err := e.blocks.List(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBlock_ExpiredBlockReopensConversation(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()
	exp := t0.Add(time.Hour)
	_, err := e.blocks.Block(ctx, "B", "A", "", &exp)
	require.NoError(t, err)

	_, err = e.msgs.SendText(ctx, SendInput{ConversationID: e.conv.ID, SenderID: "A", Text: "hi"})
	require.Equal(t, apperr.BlockedByPolicy, apperr.KindOf(err))

	e.clk.Advance(2 * time.Hour)
	m, err := e.msgs.SendText(ctx, SendInput{ConversationID: e.conv.ID, SenderID: "A", Text: "still there?"})
	require.NoError(t, err)
	assert.Equal(t, "still there?", m.Body)

	c, err := repo.GetConversation(ctx, e.db, e.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationActive, c.Status)
	assert.False(t, c.Participant("B").IsBlocked)
}

func TestBlock_ReopenKeepsActiveBlock(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()
	_, err := e.blocks.Block(ctx, "B", "A", "", nil)
	require.NoError(t, err)

	c, err := repo.GetConversation(ctx, e.db, e.conv.ID)
	require.NoError(t, err)
	ok, err := e.blocks.Reopen(ctx, c)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.ConversationBlocked, c.Status)
}

func TestBlock_Validation(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()
	_, err := e.blocks.Block(ctx, "A", "A", "", nil)
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))

	past := t0.Add(-time.Minute)
	_, err = e.blocks.Block(ctx, "A", "B", "", &past)
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
}
