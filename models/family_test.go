package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFamilyMembership(t *testing.T) {
	fam := &Family{
		ParentUIDs: StringList{"parent-1", "parent-2"},
		ChildUIDs:  StringList{"child-1"},
	}

	assert.True(t, fam.HasParent("parent-2"))
	assert.False(t, fam.HasParent("child-1"))
	assert.True(t, fam.HasChild("child-1"))
	assert.False(t, fam.HasChild("parent-1"))
	assert.False(t, fam.HasChild(""))
}

func TestFamilyPIN(t *testing.T) {
	fam := &Family{}

	// No PIN configured: every attempt fails, including the empty string.
	assert.False(t, fam.VerifyPIN(""))
	assert.False(t, fam.VerifyPIN("1234"))

	require.NoError(t, fam.SetPIN("1234"))
	assert.NotEqual(t, "1234", fam.PINHash)
	assert.True(t, fam.VerifyPIN("1234"))
	assert.False(t, fam.VerifyPIN("4321"))

	require.NoError(t, fam.SetPIN("9999"))
	assert.False(t, fam.VerifyPIN("1234"))
	assert.True(t, fam.VerifyPIN("9999"))
}
