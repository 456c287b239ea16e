package orders_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

func TestStatusPatchDistinguishesNullFromAbsent(t *testing.T) {
	var absent orders.StatusPatch
	require.NoError(t, json.Unmarshal([]byte(`{"description":"x"}`), &absent))
	assert.False(t, absent.NextStatusID.Set)
	require.NotNil(t, absent.Description)
	assert.Equal(t, "x", *absent.Description)

	var null orders.StatusPatch
	require.NoError(t, json.Unmarshal([]byte(`{"nextStatusId":null}`), &null))
	assert.True(t, null.NextStatusID.Set)
	assert.Nil(t, null.NextStatusID.Value)
	assert.False(t, null.Empty())

	var set orders.StatusPatch
	require.NoError(t, json.Unmarshal([]byte(`{"nextStatusId":4,"isFinal":false}`), &set))
	require.NotNil(t, set.NextStatusID.Value)
	assert.Equal(t, 4, *set.NextStatusID.Value)
	require.NotNil(t, set.IsFinal)
	assert.False(t, *set.IsFinal)

	var empty orders.StatusPatch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.Empty())
}

func TestParseID(t *testing.T) {
	id, err := orders.ParseID("9007199254740993")
	require.NoError(t, err)
	assert.EqualValues(t, int64(9007199254740993), id)

	for _, bad := range []string{"", "0", "-3", "1.5", "abc"} {
		_, err := orders.ParseID(bad)
		assert.ErrorIs(t, err, orders.ErrInvalidInput, bad)
	}
}
