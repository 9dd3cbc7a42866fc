package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SodiumBank/Datum/pkg/config"
)

func TestLoadIndustryProfile_Space(t *testing.T) {
	p, err := config.LoadIndustryProfile("../../profiles", "space")
	require.NoError(t, err)
	assert.Equal(t, "space", p.IndustryID)
	assert.Contains(t, p.DefaultPacks, "NASA_POLYMERICS")
}

func TestLoadAllIndustryProfiles_LoadsEveryFixture(t *testing.T) {
	all, err := config.LoadAllIndustryProfiles("../../profiles")
	require.NoError(t, err)
	for _, code := range []string{"space", "medical", "automotive", "aerospace"} {
		p, ok := all[code]
		require.Truef(t, ok, "expected industry profile %q to be loaded", code)
		assert.NotEmpty(t, p.DefaultPacks)
	}
}
