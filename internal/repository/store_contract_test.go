package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hitoshi/courseman/internal/model"
)

// runStoreContract はDocumentStore実装が共通して満たすべき振る舞いを検証する。
// newStore は呼び出しごとに空のストアを返すこと。
func runStoreContract(t *testing.T, newStore func(t *testing.T) DocumentStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Get_NotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "users", "missing")
		var nf *model.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected *model.NotFoundError, got %v", err)
		}
		if nf.Collection != "users" || nf.ID != "missing" {
			t.Errorf("NotFoundError = %+v", nf)
		}
	})

	t.Run("PutGet_NormalizesValues", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "users", "u1", map[string]any{
			"name": "Ana",
			"cart": []string{"c1", "c2"},
		}); err != nil {
			t.Fatalf("Put: %v", err)
		}

		doc, err := s.Get(ctx, "users", "u1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if doc.ID != "u1" || doc.Data["name"] != "Ana" {
			t.Errorf("doc = %+v", doc)
		}
		cart, ok := model.StringSlice(doc.Data["cart"])
		if !ok || len(cart) != 2 || cart[0] != "c1" || cart[1] != "c2" {
			t.Errorf("cart = %#v", doc.Data["cart"])
		}
		if doc.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("Put_ReplacesWholeDocument", func(t *testing.T) {
		s := newStore(t)
		mustPut(t, s, "courses", "c1", map[string]any{"name": "Go", "price": 10.0})
		mustPut(t, s, "courses", "c1", map[string]any{"name": "Go 2"})

		doc, err := s.Get(ctx, "courses", "c1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if _, ok := doc.Data["price"]; ok {
			t.Errorf("price should have been removed by Put: %+v", doc.Data)
		}
	})

	t.Run("Put_IfAbsent", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "users", "u1", map[string]any{"name": "a"}, IfAbsent()); err != nil {
			t.Fatalf("first Put: %v", err)
		}
		err := s.Put(ctx, "users", "u1", map[string]any{"name": "b"}, IfAbsent())
		if !errors.Is(err, model.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		doc, _ := s.Get(ctx, "users", "u1")
		if doc.Data["name"] != "a" {
			t.Errorf("document was overwritten: %+v", doc.Data)
		}
	})

	t.Run("Patch_MergesFields", func(t *testing.T) {
		s := newStore(t)
		mustPut(t, s, "users", "u1", map[string]any{"name": "Ana", "cart": []string{"c1"}})

		if err := s.Patch(ctx, "users", "u1", map[string]any{"cart": []string{}}); err != nil {
			t.Fatalf("Patch: %v", err)
		}
		doc, err := s.Get(ctx, "users", "u1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if doc.Data["name"] != "Ana" {
			t.Errorf("name lost after patch: %+v", doc.Data)
		}
		cart, ok := model.StringSlice(doc.Data["cart"])
		if !ok || len(cart) != 0 {
			t.Errorf("cart = %#v, want empty", doc.Data["cart"])
		}
	})

	t.Run("Patch_NotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.Patch(ctx, "users", "ghost", map[string]any{"name": "x"})
		if !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if ok, _ := s.Exists(ctx, "users", "ghost"); ok {
			t.Error("Patch must not create a document")
		}
	})

	t.Run("Patch_IfVersion", func(t *testing.T) {
		s := newStore(t)
		mustPut(t, s, "users", "u1", map[string]any{"name": "Ana"})
		doc, _ := s.Get(ctx, "users", "u1")
		stale := doc.Version

		if err := s.Patch(ctx, "users", "u1", map[string]any{"name": "Bia"}, IfVersion(stale)); err != nil {
			t.Fatalf("Patch with current version: %v", err)
		}

		err := s.Patch(ctx, "users", "u1", map[string]any{"name": "Caio"}, IfVersion(stale))
		var conflict *model.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected *model.ConflictError, got %v", err)
		}

		doc, _ = s.Get(ctx, "users", "u1")
		if doc.Data["name"] != "Bia" {
			t.Errorf("name = %v, want Bia", doc.Data["name"])
		}
		if doc.Version == stale {
			t.Error("version should change after a write")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		mustPut(t, s, "users", "u1", map[string]any{"name": "Ana"})

		if err := s.Delete(ctx, "users", "u1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if ok, err := s.Exists(ctx, "users", "u1"); err != nil || ok {
			t.Errorf("Exists after delete = %v, %v", ok, err)
		}
		if err := s.Delete(ctx, "users", "u1"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("second Delete: expected not found, got %v", err)
		}
	})

	t.Run("ScanAll_OrderedAndScopedToCollection", func(t *testing.T) {
		s := newStore(t)
		mustPut(t, s, "courses", "b", map[string]any{"name": "B"})
		mustPut(t, s, "courses", "a", map[string]any{"name": "A"})
		mustPut(t, s, "users", "a", map[string]any{"name": "user"})

		docs, err := s.ScanAll(ctx, "courses")
		if err != nil {
			t.Fatalf("ScanAll: %v", err)
		}
		if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
			t.Errorf("ScanAll ids = %v", docIDs(docs))
		}

		empty, err := s.ScanAll(ctx, "logs")
		if err != nil || len(empty) != 0 {
			t.Errorf("ScanAll on empty collection = %v, %v", docIDs(empty), err)
		}
	})

	t.Run("ScanPage_WalksAllDocuments", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			mustPut(t, s, "users", fmt.Sprintf("u%d", i), map[string]any{"n": i})
		}

		var seen []string
		cursor := ""
		for pages := 0; ; pages++ {
			if pages > 5 {
				t.Fatal("pagination did not terminate")
			}
			docs, next, err := s.ScanPage(ctx, "users", 2, cursor)
			if err != nil {
				t.Fatalf("ScanPage: %v", err)
			}
			seen = append(seen, docIDs(docs)...)
			if next == "" {
				break
			}
			cursor = next
		}

		want := []string{"u0", "u1", "u2", "u3", "u4"}
		if fmt.Sprint(seen) != fmt.Sprint(want) {
			t.Errorf("pages = %v, want %v", seen, want)
		}
	})

	t.Run("ScanPage_RejectsNonPositiveSize", func(t *testing.T) {
		s := newStore(t)
		if _, _, err := s.ScanPage(ctx, "users", 0, ""); err == nil {
			t.Error("expected error for page size 0")
		}
	})
}

func mustPut(t *testing.T, s DocumentStore, collection, id string, data map[string]any) {
	t.Helper()
	if err := s.Put(context.Background(), collection, id, data); err != nil {
		t.Fatalf("Put(%s/%s): %v", collection, id, err)
	}
}

func docIDs(docs []*Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
