package catalog

import (
	"fmt"
	"testing"

	"github.com/felmond13/novusdb-doc/storage"
)

func tempPager(t *testing.T) *storage.Pager {
	t.Helper()
	p, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestCatalogEmptyOnFreshDatabase(t *testing.T) {
	pager := tempPager(t)
	c, err := Load(pager)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Collections()) != 0 {
		t.Fatal("expected no collections on a fresh database")
	}
}

func TestCatalogSingleCollectionRoundTrip(t *testing.T) {
	pager := tempPager(t)
	c, err := Load(pager)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Put(CollectionMeta{
		Name:          "users",
		FirstPageID:   5,
		LastPageID:    5,
		DocumentCount: 3,
		Indexes: []IndexMeta{
			{Name: "by_email", Fields: [][]string{{"email"}}, Unique: true, RootPageID: 9},
		},
	})
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := Load(pager)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.Get("users")
	if !ok {
		t.Fatal("expected users collection to persist")
	}
	if got.DocumentCount != 3 || got.FirstPageID != 5 {
		t.Fatalf("unexpected metadata after reload: %+v", got)
	}
	if len(got.Indexes) != 1 || got.Indexes[0].Name != "by_email" || !got.Indexes[0].Unique {
		t.Fatalf("unexpected index metadata after reload: %+v", got.Indexes)
	}
	if len(got.Indexes[0].Fields) != 1 || got.Indexes[0].Fields[0][0] != "email" {
		t.Fatalf("unexpected index field path after reload: %+v", got.Indexes[0].Fields)
	}
}

func TestCatalogMultiPageChain(t *testing.T) {
	pager := tempPager(t)
	c, err := Load(pager)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 200; i++ {
		c.Put(CollectionMeta{
			Name:        fmt.Sprintf("collection_%03d", i),
			FirstPageID: uint32(i + 1),
			LastPageID:  uint32(i + 1),
			Indexes: []IndexMeta{
				{Name: "idx_a", Fields: [][]string{{"a"}}, RootPageID: uint32(1000 + i)},
				{Name: "idx_b", Fields: [][]string{{"b", "c"}}, RootPageID: uint32(2000 + i)},
				{Name: "idx_c", Fields: [][]string{{"d"}}, Unique: true, RootPageID: uint32(3000 + i)},
				{Name: "idx_d", Fields: [][]string{{"e"}}, RootPageID: uint32(4000 + i)},
				{Name: "idx_e", Fields: [][]string{{"f"}}, RootPageID: uint32(5000 + i)},
			},
		})
	}
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	reloaded, err := Load(pager)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Collections()) != 200 {
		t.Fatalf("expected 200 collections, got %d", len(reloaded.Collections()))
	}
	got, ok := reloaded.Get("collection_150")
	if !ok {
		t.Fatal("expected collection_150 to survive the multi-page round trip")
	}
	if len(got.Indexes) != 5 {
		t.Fatalf("expected 5 indexes, got %d", len(got.Indexes))
	}
	if got.Indexes[1].Fields[0][0] != "b" || got.Indexes[1].Fields[0][1] != "c" {
		t.Fatalf("expected dotted path [b c], got %v", got.Indexes[1].Fields[0])
	}
}

func TestCatalogRemoveAndShrinkBackToSinglePage(t *testing.T) {
	pager := tempPager(t)
	c, err := Load(pager)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 200; i++ {
		c.Put(CollectionMeta{Name: fmt.Sprintf("c%03d", i)})
	}
	if err := c.Save(); err != nil {
		t.Fatalf("save large: %v", err)
	}
	for i := 1; i < 200; i++ {
		c.Remove(fmt.Sprintf("c%03d", i))
	}
	if err := c.Save(); err != nil {
		t.Fatalf("save shrunk: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("verify after shrink: %v", err)
	}
	reloaded, err := Load(pager)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Collections()) != 1 {
		t.Fatalf("expected 1 collection remaining, got %d", len(reloaded.Collections()))
	}
}
