package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureMerchant_CreatesAndAppendsAliases(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	m, err := db.EnsureMerchant("Netflix", "no-reply@netflixmail.com")
	require.NoError(t, err)
	assert.Equal(t, "Netflix", m.Name)
	assert.Equal(t, []string{"no-reply@netflixmail.com"}, m.Aliases)

	// Same alias again is a no-op
	m, err = db.EnsureMerchant("Netflix", "no-reply@netflixmail.com")
	require.NoError(t, err)
	assert.Len(t, m.Aliases, 1)

	// A new alias is appended
	m, err = db.EnsureMerchant("Netflix", "NETFLIX INC")
	require.NoError(t, err)
	assert.Equal(t, []string{"no-reply@netflixmail.com", "NETFLIX INC"}, m.Aliases)
}

func TestFindMerchant(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	_, err := db.EnsureMerchant("Netflix", "no-reply@netflixmail.com")
	require.NoError(t, err)

	// Exact name, case-insensitive
	m, err := db.FindMerchant("netflix")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Netflix", m.Name)

	// Alias match
	m, err = db.FindMerchant("NO-REPLY@NETFLIXMAIL.COM")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Netflix", m.Name)

	// Near-miss spelling still links up
	m, err = db.FindMerchant("Netfliix")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Netflix", m.Name)

	// Distant names do not
	m, err = db.FindMerchant("Totally Different Co")
	require.NoError(t, err)
	assert.Nil(t, m)
}
