package storage

import "testing"

func TestLRUCacheBasic(t *testing.T) {
	c := newLRUCache(3)

	var d1, d2, d3, d4 [PageSize]byte
	d1[0] = 1
	d2[0] = 2
	d3[0] = 3
	d4[0] = 4

	c.put(1, d1, false)
	c.put(2, d2, false)
	c.put(3, d3, false)

	if _, ok := c.get(1); !ok {
		t.Error("page 1 should be cached")
	}
	if _, ok := c.get(2); !ok {
		t.Error("page 2 should be cached")
	}
	if _, ok := c.get(3); !ok {
		t.Error("page 3 should be cached")
	}

	// MRU order after the three gets above is 3,2,1, so 1 is now LRU.
	c.put(4, d4, false)

	if _, ok := c.get(1); ok {
		t.Error("page 1 should have been evicted")
	}
	if _, ok := c.get(4); !ok {
		t.Error("page 4 should be cached")
	}
}

func TestLRUCacheUpdate(t *testing.T) {
	c := newLRUCache(3)

	var d1, d1new [PageSize]byte
	d1[0] = 1
	d1new[0] = 99

	c.put(1, d1, false)
	c.put(1, d1new, false)

	data, ok := c.get(1)
	if !ok {
		t.Fatal("page 1 should be cached")
	}
	if data[0] != 99 {
		t.Errorf("expected updated value 99, got %d", data[0])
	}
}

func TestLRUCacheInvalidate(t *testing.T) {
	c := newLRUCache(3)

	var d1 [PageSize]byte
	d1[0] = 1
	c.put(1, d1, false)

	c.invalidate(1)

	if _, ok := c.get(1); ok {
		t.Error("page 1 should have been invalidated")
	}
}

func TestLRUCacheClear(t *testing.T) {
	c := newLRUCache(3)

	var d [PageSize]byte
	c.put(1, d, false)
	c.put(2, d, false)
	c.put(3, d, false)

	c.clear()

	_, _, size, _ := c.stats()
	if size != 0 {
		t.Errorf("expected size 0 after clear, got %d", size)
	}
}

func TestLRUCacheStats(t *testing.T) {
	c := newLRUCache(10)

	var d [PageSize]byte
	c.put(1, d, false)
	c.put(2, d, false)

	c.get(1) // hit
	c.get(1) // hit
	c.get(3) // miss

	hits, misses, size, cap := c.stats()
	if hits != 2 {
		t.Errorf("expected 2 hits, got %d", hits)
	}
	if misses != 1 {
		t.Errorf("expected 1 miss, got %d", misses)
	}
	if size != 2 {
		t.Errorf("expected size 2, got %d", size)
	}
	if cap != 10 {
		t.Errorf("expected capacity 10, got %d", cap)
	}

	rate := c.hitRate()
	if rate < 0.66 || rate > 0.67 {
		t.Errorf("expected hit rate ~0.667, got %f", rate)
	}
}

func TestLRUCacheEvictionOrder(t *testing.T) {
	c := newLRUCache(3)

	var d [PageSize]byte
	c.put(1, d, false)
	c.put(2, d, false)
	c.put(3, d, false)

	// Touch 1 to make it MRU, leaving LRU order 2, 3, 1.
	c.get(1)

	c.put(4, d, false)

	if _, ok := c.get(2); ok {
		t.Error("page 2 should have been evicted (LRU)")
	}
	if _, ok := c.get(1); !ok {
		t.Error("page 1 should still be cached (was accessed recently)")
	}
	if _, ok := c.get(3); !ok {
		t.Error("page 3 should still be cached")
	}
	if _, ok := c.get(4); !ok {
		t.Error("page 4 should be cached")
	}
}

func TestLRUCacheDirtyNotEvicted(t *testing.T) {
	c := newLRUCache(2)

	var d [PageSize]byte
	c.put(1, d, true)  // dirty
	c.put(2, d, true)  // dirty
	c.put(3, d, false) // over capacity, but both existing entries are dirty

	if _, ok := c.get(1); !ok {
		t.Error("dirty page 1 should not have been evicted")
	}
	if _, ok := c.get(2); !ok {
		t.Error("dirty page 2 should not have been evicted")
	}
	if _, ok := c.get(3); !ok {
		t.Error("page 3 should be cached")
	}

	ids := c.dirtyPageIDs()
	if len(ids) != 2 {
		t.Errorf("expected 2 dirty pages, got %d", len(ids))
	}

	c.markClean(1)
	c.put(4, d, false) // now 1 is clean and should be the eviction victim

	if _, ok := c.get(1); ok {
		t.Error("clean page 1 should have been evicted once a victim was available")
	}
}
