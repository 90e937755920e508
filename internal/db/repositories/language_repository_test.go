package repositories

import (
	"context"
	"testing"
)

func TestLanguageGetUnset(t *testing.T) {
	repo := NewLanguageRepository(newTestDB(t))
	lang, err := repo.Get(context.Background(), "!a")
	if err != nil {
		t.Fatal(err)
	}
	if lang != "" {
		t.Errorf("expected empty for unset origin, got %q", lang)
	}
}

func TestLanguageSetAndUpsert(t *testing.T) {
	repo := NewLanguageRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.Set(ctx, "!a", "es"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(ctx, "!a", "en"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	lang, _ := repo.Get(ctx, "!a")
	if lang != "en" {
		t.Errorf("expected en after upsert, got %q", lang)
	}
}
