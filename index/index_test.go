package index

import (
	"fmt"
	"testing"

	"github.com/felmond13/novusdb-doc/bson"
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

func docWithField(field string, v bson.Value) *bson.Document {
	d := bson.NewDocument()
	d.Set(field, v)
	return d
}

func TestIndexUniqueAddLookupRejectsDuplicate(t *testing.T) {
	pager := tempPager(t)
	spec := Spec{Name: "by_email", Fields: []FieldSpec{{Path: []string{"email"}}}, Unique: true}
	idx, err := NewIndex("users", spec, pager)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	id1 := bson.NewObjectID()
	if err := idx.Add(docWithField("email", bson.String("a@x.com")), id1); err != nil {
		t.Fatalf("add: %v", err)
	}
	id2 := bson.NewObjectID()
	err = idx.Add(docWithField("email", bson.String("a@x.com")), id2)
	if err != storage.ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey on duplicate unique key, got %v", err)
	}

	ids, err := idx.Lookup([]bson.Value{bson.String("a@x.com")})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(ids) != 1 || ids[0] != id1 {
		t.Fatalf("expected [%v], got %v", id1, ids)
	}
}

func TestIndexNonUniqueAllowsDuplicates(t *testing.T) {
	pager := tempPager(t)
	spec := Spec{Name: "by_type", Fields: []FieldSpec{{Path: []string{"type"}}}, Unique: false}
	idx, err := NewIndex("jobs", spec, pager)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	id1, id2, id3 := bson.NewObjectID(), bson.NewObjectID(), bson.NewObjectID()
	mustAdd := func(id bson.ObjectID, v string) {
		t.Helper()
		if err := idx.Add(docWithField("type", bson.String(v)), id); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	mustAdd(id1, "oracle")
	mustAdd(id2, "oracle")
	mustAdd(id3, "mysql")

	ids, err := idx.Lookup([]bson.Value{bson.String("oracle")})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids for oracle, got %d", len(ids))
	}

	ids, err = idx.Lookup([]bson.Value{bson.String("postgres")})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected 0 ids for postgres, got %d", len(ids))
	}
}

func TestIndexRemove(t *testing.T) {
	pager := tempPager(t)
	spec := Spec{Name: "by_type", Fields: []FieldSpec{{Path: []string{"type"}}}, Unique: false}
	idx, _ := NewIndex("jobs", spec, pager)

	id1, id2 := bson.NewObjectID(), bson.NewObjectID()
	idx.Add(docWithField("type", bson.String("oracle")), id1)
	idx.Add(docWithField("type", bson.String("oracle")), id2)

	if err := idx.Remove(docWithField("type", bson.String("oracle")), id1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ids, _ := idx.Lookup([]bson.Value{bson.String("oracle")})
	if len(ids) != 1 || ids[0] != id2 {
		t.Fatalf("expected [%v], got %v", id2, ids)
	}
}

func TestIndexMissingFieldEncodesNullByte(t *testing.T) {
	pager := tempPager(t)
	spec := Spec{Name: "by_nick", Fields: []FieldSpec{{Path: []string{"nickname"}}}, Unique: false}
	idx, _ := NewIndex("users", spec, pager)

	id1 := bson.NewObjectID()
	if err := idx.Add(bson.NewDocument(), id1); err != nil {
		t.Fatalf("add with missing field: %v", err)
	}
	if err := idx.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestIndexRangeScan(t *testing.T) {
	pager := tempPager(t)
	spec := Spec{Name: "by_age", Fields: []FieldSpec{{Path: []string{"age"}}}, Unique: false}
	idx, _ := NewIndex("users", spec, pager)

	for i := int32(0); i < 50; i++ {
		idx.Add(docWithField("age", bson.Int32(i)), bson.NewObjectID())
	}

	ids, err := idx.RangeScan([]bson.Value{bson.Int32(10)}, []bson.Value{bson.Int32(19)})
	if err != nil {
		t.Fatalf("range scan: %v", err)
	}
	if len(ids) != 10 {
		t.Fatalf("expected 10 ids in [10,19], got %d", len(ids))
	}
	if err := idx.Verify(); err != nil {
		t.Fatalf("verify after range insert: %v", err)
	}
}

func TestIndexManagerLifecycle(t *testing.T) {
	pager := tempPager(t)
	m := NewManager(pager)

	spec := Spec{Name: "by_email", Fields: []FieldSpec{{Path: []string{"email"}}}, Unique: true}
	idx, err := m.CreateIndex("users", spec)
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	if _, err := m.CreateIndex("users", spec); err == nil {
		t.Fatal("expected creating a duplicate index name to fail")
	}
	if got := m.Get("users", "by_email"); got != idx {
		t.Fatal("expected Get to return the created index")
	}

	root := idx.RootPageID()
	reopened := m.OpenIndex("users", spec, root)
	if reopened.RootPageID() != root {
		t.Fatal("expected reopened index to share the same root page id")
	}

	if err := m.DropIndex("users", "by_email"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	if got := m.Get("users", "by_email"); got != nil {
		t.Fatal("expected dropped index to be unregistered")
	}
}

func TestIndexManagerDropAllForCollection(t *testing.T) {
	pager := tempPager(t)
	m := NewManager(pager)
	for i := 0; i < 3; i++ {
		spec := Spec{Name: fmt.Sprintf("idx%d", i), Fields: []FieldSpec{{Path: []string{"x"}}}}
		if _, err := m.CreateIndex("things", spec); err != nil {
			t.Fatalf("create index %d: %v", i, err)
		}
	}
	if len(m.ForCollection("things")) != 3 {
		t.Fatalf("expected 3 indexes registered")
	}
	m.DropAllForCollection("things")
	if len(m.ForCollection("things")) != 0 {
		t.Fatal("expected all indexes dropped")
	}
}
