package pim_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pim"
	"github.com/Ramsey-B/fern/pkg/pim/pimtest"
)

func TestCachedSource_GetEntity(t *testing.T) {
	fake := pimtest.New().AddEntity(&models.Entity{ID: 10, EntityTypeID: models.EntityTypeProduct})
	source := pim.NewCachedSource(fake, pim.NewRunCache())
	ctx := context.Background()

	t.Run("memoizes by id", func(t *testing.T) {
		first, err := source.GetEntity(ctx, 10, models.LoadLevelDataOnly)
		require.NoError(t, err)
		second, err := source.GetEntity(ctx, 10, models.LoadLevelDataOnly)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, fake.Calls(10))
	})

	t.Run("richer level refetches once", func(t *testing.T) {
		_, err := source.GetEntity(ctx, 10, models.LoadLevelDataAndLinks)
		require.NoError(t, err)
		_, err = source.GetEntity(ctx, 10, models.LoadLevelDataOnly)
		require.NoError(t, err)
		_, err = source.GetEntity(ctx, 10, models.LoadLevelShallow)
		require.NoError(t, err)

		assert.Equal(t, 2, fake.Calls(10))
	})

	t.Run("errors are not cached", func(t *testing.T) {
		fake.Fail(20, errors.New("boom"))
		_, err := source.GetEntity(ctx, 20, models.LoadLevelDataOnly)
		require.Error(t, err)
		_, err = source.GetEntity(ctx, 20, models.LoadLevelDataOnly)
		require.Error(t, err)

		assert.Equal(t, 2, fake.Calls(20))
	})
}

func TestRunCache_StoreKeepsRicherCopy(t *testing.T) {
	cache := pim.NewRunCache()
	rich := &models.Entity{ID: 1, DisplayName: "rich"}
	cache.StoreEntity(rich, models.LoadLevelDataAndLinks)
	cache.StoreEntity(&models.Entity{ID: 1, DisplayName: "thin"}, models.LoadLevelShallow)

	got, ok := cache.Entity(1, models.LoadLevelDataOnly)
	require.True(t, ok)
	assert.Same(t, rich, got)
	assert.Equal(t, 1, cache.Len())
}

func TestCachedSource_GetCVLValues(t *testing.T) {
	fake := pimtest.New().SetCVLValues(
		models.CVLValue{CVLID: "Color", Key: "red", Value: models.LocaleString{"en-US": "Red"}},
		models.CVLValue{CVLID: "Size", Key: "red", Value: "not a color"},
	)
	cache := pim.NewRunCache()
	source := pim.NewCachedSource(fake, cache)

	values, err := source.GetCVLValues(context.Background())
	require.NoError(t, err)
	assert.Len(t, values, 2)

	value, ok := cache.GetCVLValue("Color", "red")
	require.True(t, ok)
	assert.Equal(t, models.LocaleString{"en-US": "Red"}, value.Value)

	_, ok = cache.GetCVLValue("Color", "blue")
	assert.False(t, ok)
}
