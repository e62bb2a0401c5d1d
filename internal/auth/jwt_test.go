package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("s3cret")
	tok, err := s.Generate("ops", time.Hour)
	require.NoError(t, err)

	claims, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, "voyager", claims.Issuer)
}

func TestSigner_WrongSecret(t *testing.T) {
	tok, err := NewSigner("a").Generate("ops", time.Hour)
	require.NoError(t, err)

	_, err = NewSigner("b").Parse(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSigner_Expired(t *testing.T) {
	s := NewSigner("s3cret")
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := s.Generate("ops", time.Minute)
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSigner_Disabled(t *testing.T) {
	s := NewSigner("")
	assert.False(t, s.Enabled())

	_, err := s.Generate("ops", 0)
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = s.Parse("anything")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSigner_Garbage(t *testing.T) {
	_, err := NewSigner("s3cret").Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalid)
}
