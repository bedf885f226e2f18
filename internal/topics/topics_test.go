package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_Order(t *testing.T) {
	all := All()
	require.Len(t, all, 6)
	assert.Equal(t, RegistrationCompleted, all[0].ID)
	assert.Equal(t, ProfileUpdated, all[5].ID)

	// callers cannot mutate the registry
	all[0].ID = "tampered"
	assert.Equal(t, RegistrationCompleted, All()[0].ID)
}

func TestKnownAndParse(t *testing.T) {
	for _, info := range All() {
		assert.True(t, Known(info.ID))
		assert.NotEmpty(t, Describe(info.ID))
	}

	got, err := Parse("user.approved")
	require.NoError(t, err)
	assert.Equal(t, UserApproved, got)

	_, err = Parse("user.deleted")
	assert.Error(t, err)
	assert.False(t, Known("user.deleted"))
	assert.Equal(t, "", Describe("user.deleted"))
}
