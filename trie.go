package serdbg

// patternNode is one state of the receive analysis trie.
//
// The trie is built from pattern definitions once. Exact bytes and wildcards
// are never merged: a wildcard position always follows the wildcard edge, and
// at run time the exact edge is preferred when both exist. Patterns such as
// "00 ** 02" and "00 01 **" therefore live on separate branches.
type patternNode struct {
	next     map[byte]*patternNode
	wildcard *patternNode

	tail     bool
	outcomes map[string]*Outcome
	order    []*Outcome
	active   *Outcome
}

func newPatternNode() *patternNode {
	return &patternNode{next: make(map[byte]*patternNode)}
}

// step returns the node reached with b, or nil if b continues no pattern.
func (n *patternNode) step(b byte) *patternNode {
	if child, ok := n.next[b]; ok {
		return child
	}
	return n.wildcard
}

// leaf reports whether no byte can follow this node.
func (n *patternNode) leaf() bool {
	return len(n.next) == 0 && n.wildcard == nil
}

// insert walks the pattern from n, creating missing nodes, and returns the
// final node.
func (n *patternNode) insert(p Pattern) *patternNode {
	cur := n
	for _, pb := range p {
		if pb.Any {
			if cur.wildcard == nil {
				cur.wildcard = newPatternNode()
			}
			cur = cur.wildcard
			continue
		}
		child, ok := cur.next[pb.Value]
		if !ok {
			child = newPatternNode()
			cur.next[pb.Value] = child
		}
		cur = child
	}
	return cur
}

// attach registers o as an outcome ending at n. The first enabled outcome
// becomes active; a later enabled one is forced off and attach reports false.
func (n *patternNode) attach(o *Outcome) bool {
	if n.outcomes == nil {
		n.outcomes = make(map[string]*Outcome)
	}
	n.tail = true
	n.outcomes[o.ID] = o
	n.order = append(n.order, o)
	o.leaf = n
	if !o.Enabled {
		return true
	}
	if n.active == nil {
		n.active = o
		return true
	}
	o.Enabled = false
	return false
}

// reconcile recomputes the active outcome in declaration order and returns
// the outcomes that had to be disabled.
func (n *patternNode) reconcile() []*Outcome {
	var forced []*Outcome
	n.active = nil
	for _, o := range n.order {
		if !o.Enabled {
			continue
		}
		if n.active == nil {
			n.active = o
			continue
		}
		o.Enabled = false
		forced = append(forced, o)
	}
	return forced
}
