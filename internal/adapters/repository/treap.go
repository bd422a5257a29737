package repository

import "math/rand/v2"

// treap is an order-statistic treap. less defines the in-order sequence;
// keys that compare equal in both directions are the same key.
type treap[K any] struct {
	root *tnode[K]
	less func(a, b K) bool
}

type tnode[K any] struct {
	key   K
	prio  uint64
	left  *tnode[K]
	right *tnode[K]
	size  int
}

func nsize[K any](n *tnode[K]) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix[K any](n *tnode[K]) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight[K any](y *tnode[K]) *tnode[K] {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft[K any](x *tnode[K]) *tnode[K] {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func (t *treap[K]) len() int { return nsize(t.root) }

func (t *treap[K]) insert(k K) {
	t.root = t.insertAt(t.root, k, rand.Uint64()) //nolint:gosec // balancing only
}

func (t *treap[K]) insertAt(n *tnode[K], k K, prio uint64) *tnode[K] {
	if n == nil {
		return &tnode[K]{key: k, prio: prio, size: 1}
	}
	if t.less(k, n.key) {
		n.left = t.insertAt(n.left, k, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = t.insertAt(n.right, k, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func (t *treap[K]) remove(k K) {
	t.root = t.removeAt(t.root, k)
}

func (t *treap[K]) removeAt(n *tnode[K], k K) *tnode[K] {
	if n == nil {
		return nil
	}
	switch {
	case t.less(k, n.key):
		n.left = t.removeAt(n.left, k)
	case t.less(n.key, k):
		n.right = t.removeAt(n.right, k)
	default:
		// rotate the higher-priority child up until the node is a leaf
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = t.removeAt(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = t.removeAt(n.left, k)
		}
	}
	fix(n)
	return n
}

// countBefore returns how many keys order strictly before k.
func (t *treap[K]) countBefore(k K) int {
	count := 0
	for n := t.root; n != nil; {
		if t.less(n.key, k) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// walk visits keys in order until fn returns false.
func (t *treap[K]) walk(fn func(K) bool) {
	walkNode(t.root, fn)
}

func walkNode[K any](n *tnode[K], fn func(K) bool) bool {
	if n == nil {
		return true
	}
	if !walkNode(n.left, fn) {
		return false
	}
	if !fn(n.key) {
		return false
	}
	return walkNode(n.right, fn)
}
