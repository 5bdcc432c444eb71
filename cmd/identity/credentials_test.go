package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialsPassword(t *testing.T) {
	hash := "$argon2id$v=19$..."
	c := Credentials{UserID: "user-1", PasswordHash: &hash}

	got, err := c.Password()
	require.NoError(t, err)
	require.Equal(t, hash, got)
}

func TestCredentialsPassword_NoPassword(t *testing.T) {
	c := Credentials{UserID: "user-1"}

	_, err := c.Password()
	require.True(t, IsNoPassword(err), "want ErrNoPassword kind, got %v", err)
}
