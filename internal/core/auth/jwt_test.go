package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTer_IssueParse(t *testing.T) {
	j := &JWTer{Secret: []byte("k"), Issuer: "library-catalog", TTL: time.Hour}
	tok, err := j.Issue("librarian", RoleLibrarian)
	require.NoError(t, err)

	c, err := j.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "librarian", c.Subject)
	assert.Equal(t, RoleLibrarian, c.Role)
}

func TestJWTer_Rejects(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	j := &JWTer{Secret: []byte("k"), Issuer: "a", TTL: time.Minute, Now: func() time.Time { return now }}
	tok, err := j.Issue("x", RoleLibrarian)
	require.NoError(t, err)

	other := &JWTer{Secret: []byte("other"), Issuer: "a", Now: j.Now}
	_, err = other.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := &JWTer{Secret: []byte("k"), Issuer: "b", Now: j.Now}
	_, err = wrongIssuer.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := &JWTer{Secret: []byte("k"), Issuer: "a", Now: func() time.Time { return now.Add(time.Hour) }}
	_, err = later.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = (&JWTer{}).Issue("x", RoleLibrarian)
	assert.Error(t, err)
}
