package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func fastTestConfig() Config {
	cfg := DefaultConfig()
	// Keep tests quick; correctness does not depend on cost parameters.
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_RoundTrip(t *testing.T) {
	cfg := fastTestConfig()

	enc, err := cfg.Hash("Secret123")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(enc, "$argon2id$v=19$"))

	ok, err := cfg.Verify(enc, "Secret123")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cfg.Verify(enc, "Secret124")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHash_PolicyRejects(t *testing.T) {
	cfg := fastTestConfig()

	_, err := cfg.Hash("short")
	require.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = cfg.Hash(strings.Repeat("x", cfg.Policy.MaxLength+1))
	require.ErrorIs(t, err, ErrPasswordTooLong)

	cfg.Policy.RejectVeryWeak = true
	_, err = cfg.Hash("password123")
	require.ErrorIs(t, err, ErrWeakPassword)

	// Product-name passwords are as guessable as "password".
	_, err = cfg.Hash("payroll123")
	require.ErrorIs(t, err, ErrWeakPassword)
}

func TestVerify_MalformedHashes(t *testing.T) {
	cfg := fastTestConfig()

	cases := []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	}

	for _, enc := range cases {
		_, err := cfg.Verify(enc, "whatever")
		require.ErrorIs(t, err, ErrInvalidHash, "hash: %q", enc)
	}
}

func TestVerify_RefusesOversizedParams(t *testing.T) {
	big := fastTestConfig()
	big.Params.MemoryKiB = 64 * 1024

	enc, err := big.Hash("Secret123")
	require.NoError(t, err)

	small := fastTestConfig() // limits at 8 MiB; hash claims 64 MiB
	_, err = small.Verify(enc, "Secret123")
	require.ErrorIs(t, err, ErrInvalidHash)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PAYDESK_PASSWORD_MIN_LEN", "10")
	t.Setenv("PAYDESK_ARGON2_ITERATIONS", "2")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Policy.MinLength)
	require.Equal(t, uint32(2), cfg.Params.Iterations)
}

func TestFromEnv_InvalidPolicy(t *testing.T) {
	t.Setenv("PAYDESK_PASSWORD_MIN_LEN", "100")
	t.Setenv("PAYDESK_PASSWORD_MAX_LEN", "20")

	_, err := FromEnv()
	require.Error(t, err)
}
