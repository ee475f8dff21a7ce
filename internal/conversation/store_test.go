package conversation

import (
	"testing"

	"github.com/vaultgate/vaultgate/internal/protocol"
)

func TestConversation_SequenceOrder(t *testing.T) {
	c := New()
	if c.ID == "" {
		t.Fatal("new conversation needs an id")
	}

	first := c.Append(Turn{Role: RoleUser, Content: "hello"})
	second := c.Append(Turn{Role: RoleAssistant, Content: "hi"})
	if first != 1 || second != 2 {
		t.Fatalf("sequence numbers %d, %d", first, second)
	}

	turns := c.Turns()
	if len(turns) != 2 || turns[0].Timestamp.IsZero() {
		t.Fatalf("turns not stamped: %+v", turns)
	}
}

func TestConversation_LastUserContent(t *testing.T) {
	c := New()
	c.Append(Turn{Role: RoleUser, Content: "first"})
	c.Append(Turn{Role: RoleAssistant, Content: "reply"})
	c.Append(Turn{Role: RoleUser, Content: "second"})
	c.Append(Turn{Role: RoleSystem, Marker: MarkerInterrupt})

	if got := c.LastUserContent(); got != "second" {
		t.Errorf("last user content %q", got)
	}
}

func TestFileStore_Roundtrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	c := New()
	c.Append(Turn{Role: RoleUser, Content: "summarize", ContextFiles: []string{"a.md"}})
	c.Append(Turn{
		Role:           RoleAssistant,
		Content:        "done",
		ThinkingBlocks: 1,
		ToolCalls: []protocol.ToolCallInfo{
			{ID: "toolu_1", Name: protocol.ToolRead, Status: protocol.StatusCompleted},
		},
	})
	c.SetSessionID("sess-42")

	if err := store.Save(c); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(c.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != c.ID {
		t.Errorf("id %q, want %q", loaded.ID, c.ID)
	}
	if loaded.SessionID() != "sess-42" {
		t.Errorf("session id %q", loaded.SessionID())
	}

	turns := loaded.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].ContextFiles[0] != "a.md" {
		t.Errorf("context files lost: %+v", turns[0])
	}
	if len(turns[1].ToolCalls) != 1 || turns[1].ToolCalls[0].ID != "toolu_1" {
		t.Errorf("tool calls lost: %+v", turns[1])
	}
}

// Appending to a loaded conversation must continue the sequence, not
// restart it.
func TestFileStore_SequenceRestored(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())

	c := New()
	c.Append(Turn{Role: RoleUser, Content: "one"})
	c.Append(Turn{Role: RoleAssistant, Content: "two"})
	if err := store.Save(c); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(c.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if seq := loaded.Append(Turn{Role: RoleUser, Content: "three"}); seq != 3 {
		t.Errorf("appended seq %d, want 3", seq)
	}
}

func TestFileStore_List(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())

	a, b := New(), New()
	if err := store.Save(a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(b); err != nil {
		t.Fatalf("save: %v", err)
	}

	ids, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(ids))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[a.ID] || !seen[b.ID] {
		t.Errorf("ids %v missing %s or %s", ids, a.ID, b.ID)
	}
}
