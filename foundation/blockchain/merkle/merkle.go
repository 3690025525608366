// Package merkle provides an implementation of a merkle tree for committing a
// block to its set of transactions.
//
// Digests are lowercase hex strings. A leaf is the digest of the transaction
// bytes and an internal node is the digest of the raw concatenation of its two
// children's hex digests. Each level is reduced by repeatedly taking the last
// remaining node as the left child and the new last node as the right child.
// A node left without a partner is combined with itself.
package merkle

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/merklechain/foundation/blockchain/digest"
)

// ErrEmptyTransactionSet is returned when a tree is requested for zero
// transactions. An empty set has no commitment.
var ErrEmptyTransactionSet = errors.New("cannot construct tree with no transactions")

// =============================================================================

// Tree represents a merkle tree over an ordered set of transaction strings.
type Tree struct {
	Root         *Node
	Leafs        []*Node
	MerkleRoot   string
	hashStrategy digest.Strategy
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy(hashStrategy digest.Strategy) func(t *Tree) {
	return func(t *Tree) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree for the specified transactions.
func NewTree(values []string, options ...func(t *Tree)) (*Tree, error) {
	t := Tree{
		hashStrategy: digest.SHA256,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// data. If the tree has been generated previously, the tree is re-generated
// from scratch.
func (t *Tree) Generate(values []string) error {
	if len(values) == 0 {
		return ErrEmptyTransactionSet
	}

	leafs := make([]*Node, len(values))
	for i, value := range values {
		leafs[i] = &Node{
			Hash:  digest.String(t.hashStrategy, value),
			Value: value,
			leaf:  true,
			Tree:  t,
		}
	}

	root := buildLevels(leafs, t)

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = root.Hash

	return nil
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a transaction is in the tree. An order of 0 means the
// proof hash comes first in the concatenation, 1 means it comes second.
// When a transaction appears more than once, the proof is for the first
// occurrence.
func (t *Tree) Proof(data string) ([]string, []int64, error) {
	for _, node := range t.Leafs {
		if node.Value != data {
			continue
		}

		var merkleProof []string
		var order []int64
		nodeParent := node.Parent

		for nodeParent != nil {
			if nodeParent.Left == node {
				merkleProof = append(merkleProof, nodeParent.Right.Hash)
				order = append(order, 1)
			} else {
				merkleProof = append(merkleProof, nodeParent.Left.Hash)
				order = append(order, 0)
			}
			node = nodeParent
			nodeParent = nodeParent.Parent
		}

		return merkleProof, order, nil
	}

	return nil, nil, errors.New("unable to find data in tree")
}

// Verify validates the hashes at each level of the tree and returns an error
// if the resulting hash at the root of the tree does not match the root hash.
func (t *Tree) Verify() error {
	if t.Root == nil {
		return ErrEmptyTransactionSet
	}

	if calculated := t.Root.verify(); calculated != t.MerkleRoot {
		return fmt.Errorf("root hash invalid, got %s, exp %s", calculated, t.MerkleRoot)
	}

	return nil
}

// VerifyData indicates whether a given piece of data is in the tree and if the
// hashes on the path from its leaf to the root are valid.
func (t *Tree) VerifyData(data string) error {
	proof, order, err := t.Proof(data)
	if err != nil {
		return err
	}

	return VerifyProof(t.hashStrategy, t.MerkleRoot, data, proof, order)
}

// Values returns the transactions stored in the tree in their original order.
func (t *Tree) Values() []string {
	values := make([]string, len(t.Leafs))
	for i, leaf := range t.Leafs {
		values[i] = leaf.Value
	}

	return values
}

// RootHex returns the merkle root digest.
func (t *Tree) RootHex() string {
	return t.MerkleRoot
}

// String returns a string representation of the tree. Only leaf nodes are
// included in the output.
func (t *Tree) String() string {
	s := ""

	for _, l := range t.Leafs {
		s += fmt.Sprint(l)
		s += "\n"
	}

	return s
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the Merkle tree. Use the Values function to
// return a slice that can be marshaled.
func (t *Tree) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}

// =============================================================================

// VerifyProof recomputes the root from a transaction and its proof and checks
// it against the expected root.
func VerifyProof(hashStrategy digest.Strategy, root string, data string, proof []string, order []int64) error {
	if len(proof) != len(order) {
		return fmt.Errorf("proof length %d does not match order length %d", len(proof), len(order))
	}

	hash := digest.String(hashStrategy, data)
	for i, p := range proof {
		switch order[i] {
		case 0:
			hash = digest.String(hashStrategy, p+hash)
		case 1:
			hash = digest.String(hashStrategy, hash+p)
		default:
			return fmt.Errorf("invalid proof order %d at position %d", order[i], i)
		}
	}

	if hash != root {
		return errors.New("merkle root is not equivalent to the merkle root calculated on the critical path")
	}

	return nil
}

// =============================================================================

// Node represents a node, root, or leaf in the tree. It stores pointers to its
// immediate relationships, a hash, the data if it is a leaf, and other metadata.
type Node struct {
	Tree   *Tree
	Parent *Node
	Left   *Node
	Right  *Node
	Hash   string
	Value  string
	leaf   bool
	self   bool
}

// verify walks down the tree until hitting a leaf, calculating the hash at
// each level and returning the resulting hash of the node.
func (n *Node) verify() string {
	if n.leaf {
		return digest.String(n.Tree.hashStrategy, n.Value)
	}

	left := n.Left.verify()
	right := left
	if !n.self {
		right = n.Right.verify()
	}

	return digest.String(n.Tree.hashStrategy, left+right)
}

// String returns a string representation of the node.
func (n *Node) String() string {
	return fmt.Sprintf("%t %t %s %q", n.leaf, n.self, n.Hash, n.Value)
}

// =============================================================================

// buildLevels reduces the leaf level until a single root remains. Each level
// is consumed from its end, so the last node becomes a left child and the node
// before it becomes the right child.
func buildLevels(leafs []*Node, t *Tree) *Node {
	nodes := make([]*Node, len(leafs))
	copy(nodes, leafs)

	for len(nodes) > 1 {
		next := make([]*Node, 0, (len(nodes)+1)/2)

		for len(nodes) > 0 {
			left := nodes[len(nodes)-1]
			nodes = nodes[:len(nodes)-1]

			right := left
			if len(nodes) > 0 {
				right = nodes[len(nodes)-1]
				nodes = nodes[:len(nodes)-1]
			}

			next = append(next, combine(left, right, t))
		}

		nodes = next
	}

	return nodes[0]
}

// combine constructs the parent of the two nodes.
func combine(left *Node, right *Node, t *Tree) *Node {
	n := Node{
		Left:  left,
		Right: right,
		Hash:  digest.String(t.hashStrategy, left.Hash+right.Hash),
		self:  left == right,
		Tree:  t,
	}

	left.Parent = &n
	right.Parent = &n

	return &n
}
