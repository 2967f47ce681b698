package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinsight/ctr-registry-api/internal/dto"
)

func TestNormalizeEntity(t *testing.T) {
	// Hyphenated route spellings map to the canonical entity names.
	assert.Equal(t, dto.EntityDatabaseRelease, normalizeEntity("database-releases"))
	assert.Equal(t, dto.EntityReportingEffort, normalizeEntity("reporting-efforts"))
	assert.Equal(t, dto.EntityItem, normalizeEntity("items"))
	assert.Equal(t, dto.EntityPackageItem, normalizeEntity("package-items"))
	assert.Equal(t, dto.EntityTextElement, normalizeEntity("text-elements"))

	// Canonical names and already-plain segments pass through.
	assert.Equal(t, dto.EntityDatabaseRelease, normalizeEntity("database_releases"))
	assert.Equal(t, dto.EntityStudy, normalizeEntity("studies"))
	assert.Equal(t, dto.EntityUser, normalizeEntity("users"))
	assert.Equal(t, "bogus", normalizeEntity("bogus"))
}
