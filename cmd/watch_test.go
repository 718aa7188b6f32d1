package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnappt/seatwatch/internal/config"
	"github.com/finnappt/seatwatch/internal/identity"
)

func TestParseCategories(t *testing.T) {
	t.Parallel()

	cats, err := parseCategories([]string{"STUDENT", "work", "1206"})
	require.NoError(t, err)
	assert.Equal(t, []identity.SeatCategory{identity.Student, identity.Work, identity.Visa}, cats)

	_, err = parseCategories([]string{"STUDENT", "bogus"})
	require.Error(t, err)
}

func TestApplicantFromConfig(t *testing.T) {
	t.Parallel()

	got := applicantFromConfig(config.ApplicantConfig{
		PassportNumber: "PA1234567",
		DateOfBirth:    "01/02/1990",
		Gender:         "2",
		Email:          "someone@example.com",
	})
	assert.Equal(t, "PA1234567", got.PassportNumber)
	assert.Equal(t, identity.Female, got.Gender)
	assert.Equal(t, "someone@example.com", got.Email)
}
