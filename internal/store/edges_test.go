package store

import (
	"context"
	"testing"

	"github.com/lazypower/attend/internal/event"
)

func TestAddEdgeAndEdgesFor(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		mustEvent(t, db, id, nil)
	}

	edges := []event.Edge{
		{From: "a", To: "b", Type: event.EdgeCausal, Weight: 0.5},
		{From: "c", To: "a", Type: event.EdgeRevisit},
		{From: "c", To: "d"},
	}
	for _, e := range edges {
		if err := db.AddEdge(ctx, e); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}

	got, err := db.EdgesFor(ctx, []string{"a"})
	if err != nil {
		t.Fatalf("EdgesFor: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("EdgesFor(a) = %d, want 2", len(got))
	}
	if got[0].From != "a" || got[0].Type != event.EdgeCausal || got[0].Weight != 0.5 {
		t.Errorf("first edge = %+v", got[0])
	}
	if got[1].Weight != 1 {
		t.Errorf("default weight = %v, want 1", got[1].Weight)
	}

	got, err = db.EdgesFor(ctx, []string{"d"})
	if err != nil {
		t.Fatalf("EdgesFor: %v", err)
	}
	if len(got) != 1 || got[0].Type != event.EdgeRelated {
		t.Errorf("EdgesFor(d) = %+v", got)
	}
}

func TestAddEdgeKeepsHigherWeight(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustEvent(t, db, "a", nil)
	mustEvent(t, db, "b", nil)

	for _, w := range []float64{0.9, 0.3} {
		if err := db.AddEdge(ctx, event.Edge{From: "a", To: "b", Type: event.EdgeRevisit, Weight: w}); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	got, err := db.EdgesFor(ctx, []string{"b"})
	if err != nil {
		t.Fatalf("EdgesFor: %v", err)
	}
	if len(got) != 1 || got[0].Weight != 0.9 {
		t.Errorf("edges = %+v", got)
	}
}

func TestAddEdgeRejectsInvalid(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustEvent(t, db, "a", nil)

	if err := db.AddEdge(ctx, event.Edge{From: "a", To: "a"}); err == nil {
		t.Error("expected error for self edge")
	}
	if err := db.AddEdge(ctx, event.Edge{From: "a", To: "ghost"}); err == nil {
		t.Error("expected foreign key error for unknown endpoint")
	}
}
