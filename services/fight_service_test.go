package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fight-arena/models"
)

func TestLeadingViolationPrecedence(t *testing.T) {
	violations := []models.Violation{
		{Code: models.ViolationExternalTrades},
		{Code: models.ViolationSameIPPattern},
		{Code: models.ViolationMinVolume},
	}

	lead := LeadingViolation(violations)
	require.NotNil(t, lead)
	assert.Equal(t, models.ViolationSameIPPattern, lead.Code)
}

func TestLeadingViolationEmpty(t *testing.T) {
	assert.Nil(t, LeadingViolation(nil))
}

func TestLeadingViolationStableForEqualCodes(t *testing.T) {
	violations := []models.Violation{
		{Code: models.ViolationMinVolume, FlaggedUserID: "alice"},
		{Code: models.ViolationMinVolume, FlaggedUserID: "bob"},
	}

	lead := LeadingViolation(violations)
	require.NotNil(t, lead)
	assert.Equal(t, "alice", lead.FlaggedUserID, "first occurrence wins on equal precedence")
}
