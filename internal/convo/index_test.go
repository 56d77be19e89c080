package convo

import (
	"context"
	"testing"

	"github.com/sablehq/sable/internal/llm"
)

func TestIndex_UpsertAndList(t *testing.T) {
	ix, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	ctx := context.Background()
	conv := validConversation()
	conv.Title = "list files"
	if err := ix.Upsert(ctx, conv); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	summaries, err := ix.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].ID != conv.ID || summaries[0].Title != "list files" {
		t.Errorf("summaries = %+v", summaries)
	}
	if summaries[0].MessageCount != len(conv.Messages) {
		t.Errorf("message count = %d", summaries[0].MessageCount)
	}

	// Upsert again refreshes instead of duplicating.
	conv.Title = "renamed"
	if err := ix.Upsert(ctx, conv); err != nil {
		t.Fatal(err)
	}
	summaries, _ = ix.List(ctx, 10)
	if len(summaries) != 1 || summaries[0].Title != "renamed" {
		t.Errorf("after re-upsert: %+v", summaries)
	}
}

func TestIndex_Search(t *testing.T) {
	ix, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	ctx := context.Background()
	a := NewConversation("p")
	a.Title = "kubernetes chat"
	a.Messages = []Message{NewMessage(llm.RoleUser, "how do I restart a kubernetes pod")}
	b := NewConversation("p")
	b.Title = "cooking"
	b.Messages = []Message{NewMessage(llm.RoleUser, "best pasta recipe")}
	for _, c := range []*Conversation{a, b} {
		if err := ix.Upsert(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	results, err := ix.Search(ctx, "kubernetes", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != a.ID {
		t.Errorf("results = %+v", results)
	}
	if results[0].Snippet == "" {
		t.Error("no snippet returned")
	}
}

func TestIndex_DeleteAndRebuild(t *testing.T) {
	dataDir := t.TempDir()
	ix, err := OpenIndex(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	ctx := context.Background()
	conv := validConversation()
	if err := ix.Upsert(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if err := ix.Delete(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}
	if summaries, _ := ix.List(ctx, 10); len(summaries) != 0 {
		t.Errorf("after delete: %+v", summaries)
	}

	// Rebuild restores the catalog from the JSON files.
	filesDir := t.TempDir()
	if err := Save(filesDir, conv); err != nil {
		t.Fatal(err)
	}
	if err := ix.Rebuild(ctx, filesDir); err != nil {
		t.Fatal(err)
	}
	if summaries, _ := ix.List(ctx, 10); len(summaries) != 1 {
		t.Errorf("after rebuild: %+v", summaries)
	}
}
