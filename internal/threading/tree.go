package threading

import (
	"sort"

	"github.com/leonletto/carlot/internal/types"
)

// Node is a message with its nested replies.
type Node struct {
	types.Message
	Replies    []*Node `json:"replies"`
	ReplyCount int     `json:"reply_count"`
	HasReplies bool    `json:"has_replies"`
	ThreadRoot bool    `json:"thread_root"`
	DepthLevel int     `json:"depth_level"`
}

// BuildTree turns a flat message set into an ordered forest. Replies whose
// parent is not in the set are dropped rather than promoted to roots.
// BuildTree holds no state and does not modify msgs.
func BuildTree(msgs []types.Message) []*Node {
	nodes := make(map[string]*Node, len(msgs))
	for _, m := range msgs {
		nodes[m.ID] = &Node{Message: m, Replies: []*Node{}}
	}

	var roots []*Node
	for _, m := range msgs {
		n := nodes[m.ID]
		if m.ParentMessageID == "" {
			n.ThreadRoot = true
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[m.ParentMessageID]
		if !ok || parent == n {
			continue
		}
		parent.Replies = append(parent.Replies, n)
	}

	sortNodes(roots)
	for _, r := range roots {
		finish(r, 0)
	}
	if roots == nil {
		roots = []*Node{}
	}
	return roots
}

// finish orders replies and fills the derived fields below n. Depth is
// bounded by the number of messages since the linker only ever points a
// reply at an existing message.
func finish(n *Node, depth int) {
	n.DepthLevel = depth
	n.ReplyCount = len(n.Replies)
	n.HasReplies = n.ReplyCount > 0
	sortNodes(n.Replies)
	for _, r := range n.Replies {
		finish(r, depth+1)
	}
}

func sortNodes(ns []*Node) {
	sort.SliceStable(ns, func(i, j int) bool {
		return less(&ns[i].Message, &ns[j].Message)
	})
}

// less orders by thread_order, falling back to created_at when the orders
// tie or either is unset (zero).
func less(a, b *types.Message) bool {
	if a.ThreadOrder != 0 && b.ThreadOrder != 0 && a.ThreadOrder != b.ThreadOrder {
		return a.ThreadOrder < b.ThreadOrder
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Flatten walks a forest depth-first in display order.
func Flatten(roots []*Node) []*Node {
	var out []*Node
	var walk func([]*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			out = append(out, n)
			walk(n.Replies)
		}
	}
	walk(roots)
	return out
}
