package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wfunc/quizserver/models"
)

func TestParse(t *testing.T) {
	require := require.New(t)

	cmd, room, quit := parse("join abc123", "")
	require.False(quit)
	require.Equal("ABC123", room)
	require.Equal(models.JoinRoom{Code: "ABC123"}, cmd)

	cmd, room, _ = parse("answer  New York ", room)
	require.Equal(models.SubmitAnswer{Code: "ABC123", Answer: "New York"}, cmd)
	require.Equal("ABC123", room)

	cmd, room, _ = parse("leave", room)
	require.Equal(models.LeaveRoom{Code: "ABC123"}, cmd)
	require.Empty(room)

	cmd, room, _ = parse("room xyz789", room)
	require.Nil(cmd)
	require.Equal("XYZ789", room)

	_, _, quit = parse("quit", room)
	require.True(quit)
}
