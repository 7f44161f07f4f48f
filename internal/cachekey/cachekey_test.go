package cachekey

import (
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsKeyLayout(t *testing.T) {
	key := Analytics(FamilySummary, Scope{Year: 2024, Role: "VERIFIKATOR", FacultyID: "fac-1"})
	assert.Equal(t, "analytics:summary:y=2024:r=VERIFIKATOR:f=fac-1", key)

	key = Analytics(FamilyTrend, Scope{Role: "SUPERADMIN"}, "monthly")
	assert.Equal(t, "analytics:trend:y=all:r=SUPERADMIN:f=all:monthly", key)

	key = Analytics(FamilyListing, Scope{Year: 2023, Role: "VALIDATOR"}, Param("q", "ani:*"), Param("p", "1"))
	assert.Equal(t, "analytics:listing:y=2023:r=VALIDATOR:f=all:q=ani%3A%2A:p=1", key)
}

func TestEscapedPartsDoNotCollide(t *testing.T) {
	keys := map[string]struct{}{}
	scopes := []Scope{
		{Year: 2024, Role: "VALIDATOR", FacultyID: ""},
		{Year: 2024, Role: "VALIDATOR", FacultyID: "all"},
		{Year: 2024, Role: "VALIDATOR", FacultyID: "a:b"},
		{Year: 2024, Role: "VALIDATOR:f=a", FacultyID: "b"},
		{Year: 2024, Role: "VALIDATOR", FacultyID: "a%3Ab"},
	}
	for _, scope := range scopes {
		key := Analytics(FamilyStatus, scope)
		_, dup := keys[key]
		require.False(t, dup, "duplicate key %s", key)
		keys[key] = struct{}{}
	}
}

func TestEveryFamilyKeyIsCoveredByApplicationDomain(t *testing.T) {
	scope := Scope{Year: 2024, Role: "VERIFIKATOR", FacultyID: "fac-[1]"}
	patterns := ApplicationDomain()
	for _, family := range Families {
		key := Analytics(family, scope, Param("x", "y?"))
		matched := false
		for _, pattern := range patterns {
			ok, err := path.Match(pattern, key)
			require.NoError(t, err)
			if ok {
				matched = true
				break
			}
		}
		assert.True(t, matched, "no invalidation pattern covers %s", key)
	}
	assert.Contains(t, patterns, RecentActivities)
}

func TestScholarshipDomainCoversSummaryAndList(t *testing.T) {
	patterns := ScholarshipDomain()
	ok, err := path.Match(patterns[0], Analytics(FamilySummary, Scope{Role: "SUPERADMIN"}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, patterns, AllScholarships)
	for _, pattern := range patterns {
		matched, err := path.Match(pattern, Analytics(FamilyTrend, Scope{Role: "SUPERADMIN"}, "monthly"))
		require.NoError(t, err)
		assert.False(t, matched)
	}
}
