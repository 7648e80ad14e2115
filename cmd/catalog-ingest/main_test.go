package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/restaurant-orders/internal/domain/menu"
	"github.com/xenking/restaurant-orders/internal/domain/offer"
)

func writeGz(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	return path
}

func TestDecodeFiles(t *testing.T) {
	dir := t.TempDir()
	first := writeGz(t, dir, "a.jsonl.gz",
		`{"type":"menu_item","id":"tea","name":"Tea","price":10,"category":"drink"}
{"type":"offer","id":"o1","discount_percent":10,"menu_item_ids":["tea","ghost"]}
not json

{"type":"menu_item","id":"cake","name":"Cake","price":30,"category":"dessert"}
`)
	second := writeGz(t, dir, "b.jsonl.gz",
		`{"type":"menu_item","id":"tea","name":"Mint tea","price":12,"category":"drink"}
`)

	results, err := decodeFiles(context.Background(), []string{first, second})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Len(t, results[0].items, 2)
	assert.Len(t, results[0].offers, 1)
	assert.Equal(t, 1, results[0].skipped)

	items, offers := merge(results)
	require.Len(t, items, 2)
	assert.Equal(t, "Mint tea", items[0].Name, "later file wins")
	assert.Equal(t, "cake", items[1].ID)
	require.Len(t, offers, 1)
}

func TestDecodeFiles_MissingFile(t *testing.T) {
	_, err := decodeFiles(context.Background(), []string{filepath.Join(t.TempDir(), "missing.jsonl.gz")})
	require.Error(t, err)
}

func TestFilterOffers(t *testing.T) {
	known := buildMenuFilter([]menu.Item{{ID: "tea"}}, []string{"cake"})

	offers := filterOffers([]offer.Offer{
		{ID: "mixed", MenuItemIDs: []string{"tea", "ghost-item-that-does-not-exist"}},
		{ID: "existing", MenuItemIDs: []string{"cake"}},
		{ID: "empty", MenuItemIDs: []string{"nothing-here-either"}},
	}, known)

	require.Len(t, offers, 2)
	assert.Equal(t, "mixed", offers[0].ID)
	assert.Equal(t, []string{"tea"}, offers[0].MenuItemIDs)
	assert.Equal(t, "existing", offers[1].ID)
}

func TestWriteBatches(t *testing.T) {
	var got [][]int
	err := writeBatches(context.Background(), []int{1, 2, 3, 4, 5}, 2, func(_ context.Context, rows []int) error {
		got = append(got, append([]int(nil), rows...))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, got)
}
