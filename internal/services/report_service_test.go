package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-dating-realtime/internal/apperr"
)

func TestReport(t *testing.T) {
	e := newChatEnv(t)
	ctx := context.Background()
	svc := &ReportService{DB: e.db, Clock: e.clk}
	m := e.send(t, "A", "hey")

	_, err := svc.Report(ctx, "B", m.ID, " ")
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))

	r, err := svc.Report(ctx, "B", m.ID, "harassment")
	require.NoError(t, err)
	assert.False(t, r.Automatic)

	_, err = svc.Report(ctx, "B", m.ID, "harassment")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = svc.Report(ctx, "A", m.ID, "self")
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	_, err = svc.Report(ctx, "C", m.ID, "nosy")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	_, err = svc.Report(ctx, "B", "missing", "x")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
