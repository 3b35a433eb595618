package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsFor(t *testing.T) {
	c, err := claimsFor("teacher")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"role": "teacher"}, c)

	c, err = claimsFor("admin")
	require.NoError(t, err)
	assert.Equal(t, true, c["admin"])

	_, err = claimsFor("staff")
	assert.Error(t, err)
	_, err = claimsFor("")
	assert.Error(t, err)
}
