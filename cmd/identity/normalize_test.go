package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Alice@Example.COM  ", "alice@example.com"},
		{"bob@payroll.io", "bob@payroll.io"},
		{"", ""},
		{"  ", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeEmail(tc.in), "input: %q", tc.in)
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"a.b+tag@sub.example.co",
	}
	for _, s := range valid {
		require.True(t, ValidEmail(s), "should be valid: %q", s)
	}

	invalid := []string{
		"",
		"   ",
		"no-at-sign",
		"@example.com",
		"alice@",
		"alice@localhost", // no dot in domain
		"Alice <alice@example.com>",
	}
	for _, s := range invalid {
		require.False(t, ValidEmail(s), "should be invalid: %q", s)
	}
}
