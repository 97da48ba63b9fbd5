package threading

import (
	"testing"
	"time"

	"github.com/leonletto/carlot/internal/types"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func msg(id, parent string, order int64, offset time.Duration) types.Message {
	return types.Message{
		ID:              id,
		ParentMessageID: parent,
		ThreadOrder:     order,
		CreatedAt:       t0.Add(offset),
	}
}

func TestBuildTreeABC(t *testing.T) {
	// C replies to B which replies to A; input is shuffled.
	msgs := []types.Message{
		msg("C", "B", 3, 2*time.Second),
		msg("A", "", 1, 0),
		msg("B", "A", 2, time.Second),
	}

	roots := BuildTree(msgs)
	if len(roots) != 1 {
		t.Fatalf("roots = %d, want 1", len(roots))
	}
	a := roots[0]
	if a.ID != "A" || !a.ThreadRoot || a.DepthLevel != 0 {
		t.Errorf("root = %s root=%v depth=%d", a.ID, a.ThreadRoot, a.DepthLevel)
	}
	if a.ReplyCount != 1 || !a.HasReplies {
		t.Fatalf("A reply_count = %d, has_replies = %v", a.ReplyCount, a.HasReplies)
	}
	b := a.Replies[0]
	if b.ID != "B" || b.ThreadRoot || b.DepthLevel != 1 {
		t.Errorf("B = %s root=%v depth=%d", b.ID, b.ThreadRoot, b.DepthLevel)
	}
	if len(b.Replies) != 1 || b.Replies[0].ID != "C" {
		t.Fatalf("B replies = %v", b.Replies)
	}
	c := b.Replies[0]
	if c.DepthLevel != 2 || c.HasReplies || c.Replies == nil {
		t.Errorf("C depth=%d has_replies=%v replies=%v", c.DepthLevel, c.HasReplies, c.Replies)
	}
}

func TestBuildTreeDropsOrphans(t *testing.T) {
	msgs := []types.Message{
		msg("A", "", 1, 0),
		msg("X", "missing", 2, time.Second),
		msg("Y", "X", 3, 2*time.Second),
	}
	roots := BuildTree(msgs)
	if len(roots) != 1 || roots[0].ID != "A" {
		t.Fatalf("roots = %v, want only A", roots)
	}
	if got := len(Flatten(roots)); got != 1 {
		t.Errorf("Flatten len = %d, want 1", got)
	}
}

func TestBuildTreeOrdering(t *testing.T) {
	msgs := []types.Message{
		// thread_order wins over created_at when both rows have one.
		msg("r2", "", 5, 20*time.Second),
		msg("r1", "", 1, 30*time.Second),
		msg("r1b", "r1", 4, 40*time.Second),
		msg("r1a", "r1", 2, 50*time.Second),
		// Legacy rows without an order fall back to created_at.
		msg("l2", "", 0, 2*time.Second),
		msg("l1", "", 0, time.Second),
	}
	roots := BuildTree(msgs)

	want := []string{"l1", "l2", "r1", "r2"}
	if len(roots) != len(want) {
		t.Fatalf("roots = %d, want %d", len(roots), len(want))
	}
	for i, r := range roots {
		if r.ID != want[i] {
			t.Errorf("roots[%d] = %s, want %s", i, r.ID, want[i])
		}
	}

	r1 := roots[2]
	if len(r1.Replies) != 2 || r1.Replies[0].ID != "r1a" || r1.Replies[1].ID != "r1b" {
		t.Errorf("r1 replies not ordered by thread_order")
	}
}

func TestBuildTreeTieBreaksOnCreatedAt(t *testing.T) {
	msgs := []types.Message{
		msg("b", "", 7, 2*time.Second),
		msg("a", "", 7, time.Second),
	}
	roots := BuildTree(msgs)
	if roots[0].ID != "a" {
		t.Errorf("first root = %s, want a", roots[0].ID)
	}
}

func TestBuildTreeComplete(t *testing.T) {
	// Every message whose ancestry reaches a root appears exactly once.
	msgs := []types.Message{
		msg("1", "", 1, 0),
		msg("2", "1", 2, time.Second),
		msg("3", "1", 3, 2*time.Second),
		msg("4", "2", 4, 3*time.Second),
		msg("5", "", 5, 4*time.Second),
		msg("6", "5", 6, 5*time.Second),
	}
	flat := Flatten(BuildTree(msgs))
	if len(flat) != len(msgs) {
		t.Fatalf("Flatten len = %d, want %d", len(flat), len(msgs))
	}
	want := []string{"1", "2", "4", "3", "5", "6"}
	for i, n := range flat {
		if n.ID != want[i] {
			t.Errorf("flat[%d] = %s, want %s", i, n.ID, want[i])
		}
	}
}

func TestBuildTreeEmpty(t *testing.T) {
	roots := BuildTree(nil)
	if roots == nil || len(roots) != 0 {
		t.Errorf("BuildTree(nil) = %v, want empty non-nil", roots)
	}
}

func TestBuildTreeIgnoresCycles(t *testing.T) {
	msgs := []types.Message{
		msg("a", "b", 1, 0),
		msg("b", "a", 2, time.Second),
	}
	if roots := BuildTree(msgs); len(roots) != 0 {
		t.Errorf("roots = %d, want 0", len(roots))
	}
}
