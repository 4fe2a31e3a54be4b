package kvstore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundtripAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")

	store, err := Open(path)
	require.NoError(t, err)

	type session struct {
		Token   string `json:"token"`
		Theater uint   `json:"theater"`
	}
	require.NoError(t, store.Set(KeyAuthToken, session{Token: "jwt-abc", Theater: 3}))
	require.NoError(t, store.Set(StockUpdatedKey(3), true))

	var got session
	ok, err := store.Get(KeyAuthToken, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "jwt-abc", got.Token)

	// A fresh Open sees everything the first instance flushed.
	reopened, err := Open(path)
	require.NoError(t, err)
	got = session{}
	ok, err = reopened.Get(KeyAuthToken, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 3, got.Theater)
	assert.ElementsMatch(t, []string{KeyAuthToken, StockUpdatedKey(3)}, reopened.Keys())
}

func TestGetMiss(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "device.json"))
	require.NoError(t, err)

	var v string
	ok, err := store.Get("nope", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.Set(POSCartKey(7), []int{1, 2}))
	require.NoError(t, store.Delete(POSCartKey(7)))
	require.NoError(t, store.Delete(POSCartKey(7)))

	reopened, err := Open(path)
	require.NoError(t, err)
	var v []int
	ok, err := reopened.Get(POSCartKey(7), &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetRejectsOversizedValue(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "device.json"))
	require.NoError(t, err)

	huge := strings.Repeat("x", MaxValueSize+1)
	err = store.Set("blob", huge)
	assert.ErrorIs(t, err, ErrValueTooLarge)

	var v string
	ok, _ := store.Get("blob", &v)
	assert.False(t, ok)
}

func TestTheaterScopedKeys(t *testing.T) {
	assert.Equal(t, "pending_orders_5", PendingOrdersKey(5))
	assert.Equal(t, "offline_pos_cart_5", POSCartKey(5))
	assert.Equal(t, "kioskCart_5", KioskCartKey(5))
	assert.Equal(t, "sales_updated_5", SalesUpdatedKey(5))
}
