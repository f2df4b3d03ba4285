package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/quizserver/models"
)

const secret = "test-secret"

func TestVerifier_RoundTrip(t *testing.T) {
	require := require.New(t)
	v, err := NewVerifier(secret)
	require.NoError(err)

	token, err := Issue(secret, models.Identity{UserID: "u1", Username: "alice", IsAdmin: true}, time.Hour)
	require.NoError(err)

	id, err := v.Verify(token)
	require.NoError(err)
	require.Equal(models.Identity{UserID: "u1", Username: "alice", IsAdmin: true}, id)
}

func TestVerifier_Rejects(t *testing.T) {
	require := require.New(t)
	v, err := NewVerifier(secret)
	require.NoError(err)

	other, err := Issue("other-secret", models.Identity{UserID: "u1"}, time.Hour)
	require.NoError(err)
	_, err = v.Verify(other)
	require.ErrorIs(err, models.ErrUnauthenticated)

	expired, err := Issue(secret, models.Identity{UserID: "u1"}, time.Minute)
	require.NoError(err)
	v.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = v.Verify(expired)
	require.ErrorIs(err, models.ErrUnauthenticated)
	v.now = time.Now

	// 没有 sub 的令牌
	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Name: "ghost"}).SignedString([]byte(secret))
	require.NoError(err)
	_, err = v.Verify(anonymous)
	require.ErrorIs(err, models.ErrUnauthenticated)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(err)
	_, err = v.Verify(none)
	require.ErrorIs(err, models.ErrUnauthenticated)

	_, err = v.Verify("")
	require.ErrorIs(err, models.ErrUnauthenticated)

	_, err = NewVerifier("")
	require.Error(err)
}

func TestVerifier_NameDefaultsToSubject(t *testing.T) {
	v, err := NewVerifier(secret)
	require.NoError(t, err)
	token, err := Issue(secret, models.Identity{UserID: "u9"}, 0)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u9", id.Username)
}

func TestVerifier_FromRequest(t *testing.T) {
	require := require.New(t)
	v, err := NewVerifier(secret)
	require.NoError(err)
	token, err := Issue(secret, models.Identity{UserID: "u1", Username: "alice"}, time.Hour)
	require.NoError(err)

	r := httptest.NewRequest("GET", "/api/v1/rooms", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, err := v.FromRequest(r)
	require.NoError(err)
	require.Equal("u1", id.UserID)

	r = httptest.NewRequest("GET", "/ws?token="+token, nil)
	id, err = v.FromRequest(r)
	require.NoError(err)
	require.Equal("alice", id.Username)

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	_, err = v.FromRequest(r)
	require.ErrorIs(err, models.ErrUnauthenticated)

	r = httptest.NewRequest("GET", "/ws", nil)
	_, err = v.FromRequest(r)
	require.ErrorIs(err, models.ErrUnauthenticated)
}
