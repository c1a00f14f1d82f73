package collection

import (
	"testing"

	"github.com/felmond13/novusdb-doc/bson"
	"github.com/felmond13/novusdb-doc/catalog"
	"github.com/felmond13/novusdb-doc/index"
	"github.com/felmond13/novusdb-doc/storage"
)

func tempEnv(t *testing.T) (*storage.Pager, *catalog.Catalog, *index.Manager) {
	t.Helper()
	pager, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	t.Cleanup(func() { pager.Close() })
	cat, err := catalog.Load(pager)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return pager, cat, index.NewManager(pager)
}

func docOf(t *testing.T, fields map[string]bson.Value) *bson.Document {
	t.Helper()
	d := bson.NewDocument()
	for k, v := range fields {
		d.Set(k, v)
	}
	return d
}

func filterOf(t *testing.T, field string, v bson.Value) *bson.Document {
	t.Helper()
	return bson.NewDocument().Set(field, v)
}

// TestInsertFindReopen covers insert/flush, reopening the collection
// handle on the same pager, and find.
func TestInsertFindReopen(t *testing.T) {
	pager, cat, idxMgr := tempEnv(t)
	coll, err := Create(cat, pager, idxMgr, "users")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ids, err := coll.Insert([]*bson.Document{
		docOf(t, map[string]bson.Value{"name": bson.String("Alice")}),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one id, got %d", len(ids))
	}
	if err := pager.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reopened, err := Open(cat, pager, idxMgr, "users")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	doc, found, err := reopened.FindOne(filterOf(t, "name", bson.String("Alice")))
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if !found {
		t.Fatal("expected to find Alice after reopen")
	}
	name, _ := doc.Get("name")
	s, _ := name.AsString()
	if s != "Alice" {
		t.Fatalf("unexpected name: %q", s)
	}
}

// TestUniqueIndexRejectsDuplicateAndCounts mirrors inserting 1000 docs
// with a unique index, then a duplicate that must be rejected, and
// checking Count.
func TestUniqueIndexRejectsDuplicateAndCounts(t *testing.T) {
	pager, cat, idxMgr := tempEnv(t)
	coll, err := Create(cat, pager, idxMgr, "accounts")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := coll.CreateIndex(index.Spec{
		Name:   "by_email",
		Fields: []index.FieldSpec{{Path: []string{"email"}}},
		Unique: true,
	}); err != nil {
		t.Fatalf("create index: %v", err)
	}

	for i := 0; i < 1000; i++ {
		_, err := coll.Insert([]*bson.Document{
			docOf(t, map[string]bson.Value{"email": bson.String(emailFor(i))}),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if coll.Count() != 1000 {
		t.Fatalf("expected count 1000, got %d", coll.Count())
	}

	_, err = coll.Insert([]*bson.Document{
		docOf(t, map[string]bson.Value{"email": bson.String(emailFor(0))}),
	})
	if err == nil {
		t.Fatal("expected duplicate key insert to fail")
	}
	if coll.Count() != 1000 {
		t.Fatalf("expected count unchanged after rejected duplicate, got %d", coll.Count())
	}
}

func emailFor(i int) string {
	return "user" + itoa(i) + "@example.com"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// TestUpdateSet mirrors an $set update against a matching filter.
func TestUpdateSet(t *testing.T) {
	pager, cat, idxMgr := tempEnv(t)
	coll, err := Create(cat, pager, idxMgr, "users")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := coll.Insert([]*bson.Document{
		docOf(t, map[string]bson.Value{"name": bson.String("Bob"), "age": bson.Int32(30)}),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	updateSpec := bson.NewDocument().Set("$set", bson.DocumentValue(
		bson.NewDocument().Set("age", bson.Int32(31)),
	))
	matched, modified, err := coll.Update(filterOf(t, "name", bson.String("Bob")), updateSpec, false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if matched != 1 || modified != 1 {
		t.Fatalf("expected matched=1 modified=1, got matched=%d modified=%d", matched, modified)
	}

	doc, found, err := coll.FindOne(filterOf(t, "name", bson.String("Bob")))
	if err != nil || !found {
		t.Fatalf("find after update: found=%v err=%v", found, err)
	}
	age, _ := doc.Get("age")
	n, _ := age.AsInt32()
	if n != 31 {
		t.Fatalf("expected age 31 after update, got %d", n)
	}
}

// TestNonUniqueIndexRangeScanAndDelete mirrors 2,000 docs with a
// non-unique index, a range-style scan via $gte/$lt, and deletes.
func TestNonUniqueIndexRangeScanAndDelete(t *testing.T) {
	pager, cat, idxMgr := tempEnv(t)
	coll, err := Create(cat, pager, idxMgr, "events")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := coll.CreateIndex(index.Spec{
		Name:   "by_bucket",
		Fields: []index.FieldSpec{{Path: []string{"bucket"}}},
		Unique: false,
	}); err != nil {
		t.Fatalf("create index: %v", err)
	}

	const total = 2000
	for i := 0; i < total; i++ {
		if _, err := coll.Insert([]*bson.Document{
			docOf(t, map[string]bson.Value{"bucket": bson.Int32(int32(i % 10))}),
		}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if coll.Count() != total {
		t.Fatalf("expected %d documents, got %d", total, coll.Count())
	}

	filter := bson.NewDocument().Set("bucket", bson.DocumentValue(
		bson.NewDocument().Set("$gte", bson.Int32(3)).Set("$lt", bson.Int32(4)),
	))
	matches, err := coll.Find(filter)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != total/10 {
		t.Fatalf("expected %d matches in bucket 3, got %d", total/10, len(matches))
	}

	deleted, err := coll.Delete(filter)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != total/10 {
		t.Fatalf("expected to delete %d, deleted %d", total/10, deleted)
	}
	if coll.Count() != uint64(total-total/10) {
		t.Fatalf("unexpected count after delete: %d", coll.Count())
	}

	remaining, err := coll.Find(filter)
	if err != nil {
		t.Fatalf("find after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no documents left in bucket 3, got %d", len(remaining))
	}
}

func TestDistinct(t *testing.T) {
	pager, cat, idxMgr := tempEnv(t)
	coll, err := Create(cat, pager, idxMgr, "tags")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, color := range []string{"red", "blue", "red", "green", "blue"} {
		if _, err := coll.Insert([]*bson.Document{
			docOf(t, map[string]bson.Value{"color": bson.String(color)}),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	values, err := coll.Distinct("color", nil)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 distinct colors, got %d", len(values))
	}
}

func TestUpsertInsertsWhenNoMatch(t *testing.T) {
	pager, cat, idxMgr := tempEnv(t)
	coll, err := Create(cat, pager, idxMgr, "counters")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updateSpec := bson.NewDocument().Set("$set", bson.DocumentValue(
		bson.NewDocument().Set("value", bson.Int32(1)),
	))
	matched, modified, err := coll.Update(filterOf(t, "key", bson.String("hits")), updateSpec, true)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if matched != 0 || modified != 1 {
		t.Fatalf("expected matched=0 modified=1, got matched=%d modified=%d", matched, modified)
	}
	if coll.Count() != 1 {
		t.Fatalf("expected one document after upsert, got %d", coll.Count())
	}
}

func TestValidateNameRejectsReservedAndInvalid(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"", false},
		{"system.indexes", false},
		{"has$dollar", false},
		{"has\x00null", false},
		{"users", true},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if (err == nil) != c.ok {
			t.Errorf("ValidateName(%q): got err=%v, expected ok=%v", c.name, err, c.ok)
		}
	}
}
