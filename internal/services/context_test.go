package services_test

import (
	"context"
	"testing"

	"fieldsync/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, "01HZX")
	ctx = services.WithEntity(ctx, "SESSION", "S1")
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ItemIDFromContext(ctx); !ok || id != "01HZX" {
		t.Fatalf("unexpected item id: %v %v", id, ok)
	}
	if ref, ok := services.EntityFromContext(ctx); !ok || ref.Type != "SESSION" || ref.ID != "S1" {
		t.Fatalf("unexpected entity: %+v %v", ref, ok)
	}
	if run, ok := services.RunIDFromContext(ctx); !ok || run != "run-1" {
		t.Fatalf("unexpected run id: %v %v", run, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, "")
	ctx = services.WithEntity(ctx, "", "")
	if _, ok := services.ItemIDFromContext(ctx); ok {
		t.Fatal("expected no item id value")
	}
	if _, ok := services.EntityFromContext(ctx); ok {
		t.Fatal("expected no entity value")
	}
}
