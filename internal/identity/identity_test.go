package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGeneratesDistinctIdentities(t *testing.T) {
	t.Parallel()

	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	require.NotEmpty(t, a.FirstName)
	require.NotEmpty(t, a.LastName)
	require.Len(t, a.Password, passwordLength)
	require.Len(t, a.PhoneNumber, 10)
	require.True(t, strings.HasSuffix(a.Email, "@gmail.com"), "email = %q", a.Email)
	require.NotEqual(t, a.Password, b.Password)
}

func TestEmailStripsUnsafeRunes(t *testing.T) {
	t.Parallel()

	addr := email("O'Brien", "Núñez")
	local := strings.TrimSuffix(addr, "@gmail.com")
	for _, r := range local {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.'
		require.True(t, ok, "unexpected rune %q in %q", r, addr)
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	got, err := ParseCategory("student")
	require.NoError(t, err)
	require.Equal(t, Student, got)

	got, err = ParseCategory("1205")
	require.NoError(t, err)
	require.Equal(t, Family, got)

	got, err = ParseCategory("SCHENGEN VISA")
	require.NoError(t, err)
	require.Equal(t, Visa, got)

	_, err = ParseCategory("garbage")
	require.Error(t, err)
}

func TestCategoryName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "STUDENT", Student.Name())
	require.Equal(t, "9999", SeatCategory("9999").Name())
}
