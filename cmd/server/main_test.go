package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBase_OutlivesShutdownSignal(t *testing.T) {
	var out bytes.Buffer
	log := zerolog.New(&out)
	ctx, stop := context.WithCancel(log.WithContext(context.Background()))

	base := requestBase(ctx)(nil)
	stop()

	require.Error(t, ctx.Err())
	assert.NoError(t, base.Err(), "requests keep running while the server drains")
	assert.Nil(t, base.Done())

	zerolog.Ctx(base).Info().Msg("draining")
	assert.Contains(t, out.String(), "draining")
}
