package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_Level(t *testing.T) {
	req := require.New(t)

	req.NoError(Init("debug"))
	req.True(Log.Desugar().Core().Enabled(-1))

	req.NoError(Init(""))
	req.False(Log.Desugar().Core().Enabled(-1))
}

func TestInit_BadLevel(t *testing.T) {
	require.Error(t, Init("loud"))
}
