package repository

import (
	"math"
	"math/rand/v2"
)

// orderBook ranks historical orders by score using a treap.
//
// Ordering: score DESC, then order id ASC, so an in-order walk yields the
// best orders first. Each node tracks its subtree size, which makes rank
// lookups O(log n) expected.

// Scores are multiples of 0.5 in [1,10]; two decimals keep them exact.
const scoreScale = 100

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return scoreFP(math.Round(x * scoreScale))
}

func toFloat(x scoreFP) float64 { return float64(x) / scoreScale }

type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// before reports whether (aScore, aID) ranks ahead of (bScore, bID).
func before(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1}
	}
	if before(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, score)
		}
	case before(score, id, n.score, n.id):
		n.left = remove(n.left, id, score)
	default:
		n.right = remove(n.right, id, score)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes have a strictly higher score.
func countAbove(n *node, score scoreFP) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTop appends up to limit ids in rank order.
func collectTop(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTop(n.right, limit, out)
	}
}

type orderBook struct {
	root   *node
	scores map[string]scoreFP
}

func newOrderBook() *orderBook {
	return &orderBook{scores: make(map[string]scoreFP)}
}

// upsert places id at score, moving it if it was already ranked.
func (b *orderBook) upsert(id string, score float64) {
	fp := toFixedPoint(score)
	if old, ok := b.scores[id]; ok {
		if old == fp {
			return
		}
		b.root = remove(b.root, id, old)
	}
	b.scores[id] = fp
	b.root = insert(b.root, id, fp)
}

// rank returns the competition rank of id: tied scores share a rank.
func (b *orderBook) rank(id string) (int, float64, bool) {
	fp, ok := b.scores[id]
	if !ok {
		return 0, 0, false
	}
	return countAbove(b.root, fp) + 1, toFloat(fp), true
}

// top returns up to n (id, rank, score) triples best first.
func (b *orderBook) top(n int) []rankedID {
	nodes := make([]*node, 0, n)
	collectTop(b.root, n, &nodes)
	out := make([]rankedID, len(nodes))
	for i, nd := range nodes {
		rank := i + 1
		if i > 0 && nd.score == nodes[i-1].score {
			rank = out[i-1].rank
		}
		out[i] = rankedID{id: nd.id, rank: rank, score: toFloat(nd.score)}
	}
	return out
}

func (b *orderBook) count() int { return len(b.scores) }

type rankedID struct {
	id    string
	rank  int
	score float64
}
