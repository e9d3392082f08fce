// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package shielded

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zeebo/blake3"
)

// TreeDepth is the depth of the note commitment tree.
const TreeDepth = 32

// maxTreeParents bounds the parent list read from untrusted input.
const maxTreeParents = TreeDepth - 1

var (
	// ErrTreeFull is returned when appending to a full tree.
	ErrTreeFull = errors.New("commitment tree is full")

	// ErrNoPath is returned when asking a witness for the path of an empty
	// tree.
	ErrNoPath = errors.New("witness has no authentication path")
)

// Node is a node of the note commitment tree.
type Node [32]byte

// String returns the hex encoding of the node.
func (n Node) String() string {
	return hex.EncodeToString(n[:])
}

// uncommitted is the value of an empty leaf.
var uncommitted = Node{1}

// emptyRoots[d] is the root of an empty subtree of depth d.
var emptyRoots = func() [TreeDepth + 1]Node {
	var roots [TreeDepth + 1]Node
	roots[0] = uncommitted
	for d := 1; d <= TreeDepth; d++ {
		roots[d] = combine(d-1, roots[d-1], roots[d-1])
	}
	return roots
}()

// combine hashes two children at the passed level into their parent.
func combine(level int, left, right Node) Node {
	h := blake3.New()
	h.Write([]byte{byte(level)})
	h.Write(left[:])
	h.Write(right[:])

	var n Node
	copy(n[:], h.Sum(nil))
	return n
}

// EmptyRoot returns the root of an empty subtree of depth d.
func EmptyRoot(d int) Node {
	return emptyRoots[d]
}

// pathFiller supplies the nodes missing from a frontier: the filled
// subtree roots of a witness first, empty roots after.
type pathFiller struct {
	queue []Node
}

func (f *pathFiller) next(depth int) Node {
	if len(f.queue) > 0 {
		n := f.queue[0]
		f.queue = f.queue[1:]
		return n
	}
	return emptyRoots[depth]
}

// CommitmentTree is the frontier of an append-only Merkle tree: enough to
// append leaves and compute the root.
type CommitmentTree struct {
	left    fn.Option[Node]
	right   fn.Option[Node]
	parents []fn.Option[Node]
}

// NewCommitmentTree returns an empty tree.
func NewCommitmentTree() *CommitmentTree {
	return &CommitmentTree{
		left:  fn.None[Node](),
		right: fn.None[Node](),
	}
}

// Size returns the number of leaves in the tree.
func (t *CommitmentTree) Size() uint64 {
	var size uint64
	if t.left.IsSome() {
		size++
	}
	if t.right.IsSome() {
		size++
	}
	for i, p := range t.parents {
		if p.IsSome() {
			size += 1 << (i + 1)
		}
	}
	return size
}

func (t *CommitmentTree) isComplete(depth int) bool {
	if depth == 0 {
		return t.left.IsSome() && t.right.IsNone() &&
			len(t.parents) == 0
	}
	if t.left.IsNone() || t.right.IsNone() ||
		len(t.parents) != depth-1 {

		return false
	}
	for _, p := range t.parents {
		if p.IsNone() {
			return false
		}
	}
	return true
}

// Append adds a leaf to the tree.
func (t *CommitmentTree) Append(node Node) error {
	return t.appendInner(TreeDepth, node)
}

func (t *CommitmentTree) appendInner(depth int, node Node) error {
	if t.isComplete(depth) {
		return ErrTreeFull
	}

	switch {
	case t.left.IsNone():
		t.left = fn.Some(node)

	case t.right.IsNone():
		t.right = fn.Some(node)

	default:
		combined := combine(
			0, t.left.UnwrapOr(Node{}), t.right.UnwrapOr(Node{}),
		)
		t.left = fn.Some(node)
		t.right = fn.None[Node]()

		for i := range t.parents {
			if t.parents[i].IsNone() {
				t.parents[i] = fn.Some(combined)
				return nil
			}
			combined = combine(
				i+1, t.parents[i].UnwrapOr(Node{}), combined,
			)
			t.parents[i] = fn.None[Node]()
		}
		t.parents = append(t.parents, fn.Some(combined))
	}

	return nil
}

// Root returns the root of the tree.
func (t *CommitmentTree) Root() Node {
	return t.rootInner(TreeDepth, &pathFiller{})
}

func (t *CommitmentTree) rootInner(depth int, filler *pathFiller) Node {
	left := t.left.UnwrapOr(Node{})
	if t.left.IsNone() {
		left = filler.next(0)
	}
	right := t.right.UnwrapOr(Node{})
	if t.right.IsNone() {
		right = filler.next(0)
	}
	root := combine(0, left, right)

	for i := 0; i < depth-1; i++ {
		if i < len(t.parents) && t.parents[i].IsSome() {
			root = combine(i+1, t.parents[i].UnwrapOr(Node{}), root)
		} else {
			root = combine(i+1, root, filler.next(i+1))
		}
	}
	return root
}

// Clone returns a deep copy of the tree.
func (t *CommitmentTree) Clone() *CommitmentTree {
	c := &CommitmentTree{left: t.left, right: t.right}
	c.parents = append([]fn.Option[Node](nil), t.parents...)
	return c
}

// Serialize writes the tree frontier.
func (t *CommitmentTree) Serialize(w io.Writer) error {
	if err := writeOptional(w, t.left); err != nil {
		return err
	}
	if err := writeOptional(w, t.right); err != nil {
		return err
	}
	err := wire.WriteVarInt(w, 0, uint64(len(t.parents)))
	if err != nil {
		return err
	}
	for _, p := range t.parents {
		if err := writeOptional(w, p); err != nil {
			return err
		}
	}
	return nil
}

// ReadCommitmentTree reads a tree frontier written by Serialize.
func ReadCommitmentTree(r io.Reader) (*CommitmentTree, error) {
	t := NewCommitmentTree()

	var err error
	if t.left, err = readOptional(r); err != nil {
		return nil, err
	}
	if t.right, err = readOptional(r); err != nil {
		return nil, err
	}
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if n > maxTreeParents {
		return nil, fmt.Errorf("tree has %d parents, max %d", n,
			maxTreeParents)
	}
	for i := uint64(0); i < n; i++ {
		p, err := readOptional(r)
		if err != nil {
			return nil, err
		}
		t.parents = append(t.parents, p)
	}
	return t, nil
}

// ParseCommitmentTreeHex parses a hex encoded tree frontier as found in
// checkpoints and indexer tree states.
func ParseCommitmentTreeHex(s string) (*CommitmentTree, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ParseCommitmentTree(b)
}

// ParseCommitmentTree parses a serialized tree frontier and rejects
// trailing data.
func ParseCommitmentTree(b []byte) (*CommitmentTree, error) {
	r := bytes.NewReader(b)
	t, err := ReadCommitmentTree(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after tree", r.Len())
	}
	return t, nil
}

// Hex returns the hex encoding of the serialized tree.
func (t *CommitmentTree) Hex() string {
	var buf bytes.Buffer
	_ = t.Serialize(&buf)
	return hex.EncodeToString(buf.Bytes())
}

func writeOptional(w io.Writer, o fn.Option[Node]) error {
	if o.IsNone() {
		_, err := w.Write([]byte{0})
		return err
	}
	n := o.UnwrapOr(Node{})
	_, err := w.Write(append([]byte{1}, n[:]...))
	return err
}

func readOptional(r io.Reader) (fn.Option[Node], error) {
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return fn.None[Node](), err
	}
	switch flag[0] {
	case 0:
		return fn.None[Node](), nil
	case 1:
		var n Node
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return fn.None[Node](), err
		}
		return fn.Some(n), nil
	default:
		return fn.None[Node](), fmt.Errorf("invalid optional flag %d",
			flag[0])
	}
}

// IncrementalWitness tracks the authentication path of the last leaf of a
// tree as further leaves are appended.
type IncrementalWitness struct {
	tree        *CommitmentTree
	filled      []Node
	cursorDepth int
	cursor      fn.Option[*CommitmentTree]
}

// NewIncrementalWitness returns a witness for the most recently appended
// leaf of tree.
func NewIncrementalWitness(tree *CommitmentTree) *IncrementalWitness {
	return &IncrementalWitness{
		tree:   tree.Clone(),
		cursor: fn.None[*CommitmentTree](),
	}
}

// Position returns the position of the witnessed leaf.
func (w *IncrementalWitness) Position() uint64 {
	return w.tree.Size() - 1
}

// filler returns the filled subtree roots followed by the root of the
// partially filled cursor, if any.
func (w *IncrementalWitness) filler() *pathFiller {
	queue := append([]Node(nil), w.filled...)
	w.cursor.WhenSome(func(cursor *CommitmentTree) {
		queue = append(queue, cursor.rootInner(
			w.cursorDepth, &pathFiller{},
		))
	})
	return &pathFiller{queue: queue}
}

// nextDepth returns the depth of the next subtree to be filled.
func (w *IncrementalWitness) nextDepth() int {
	skip := len(w.filled)

	if w.tree.left.IsNone() {
		if skip == 0 {
			return 0
		}
		skip--
	}
	if w.tree.right.IsNone() {
		if skip == 0 {
			return 0
		}
		skip--
	}

	d := 1
	for _, p := range w.tree.parents {
		if p.IsNone() {
			if skip == 0 {
				return d
			}
			skip--
		}
		d++
	}
	return d + skip
}

// Append records a leaf appended to the tree after the witnessed one.
func (w *IncrementalWitness) Append(node Node) error {
	if w.cursor.IsSome() {
		cursor := w.cursor.UnwrapOr(nil)
		if err := cursor.appendInner(w.cursorDepth, node); err != nil {
			return err
		}
		if cursor.isComplete(w.cursorDepth) {
			w.filled = append(
				w.filled, cursor.rootInner(
					w.cursorDepth, &pathFiller{},
				),
			)
			w.cursor = fn.None[*CommitmentTree]()
		}
		return nil
	}

	w.cursorDepth = w.nextDepth()
	if w.cursorDepth >= TreeDepth {
		return ErrTreeFull
	}
	if w.cursorDepth == 0 {
		w.filled = append(w.filled, node)
		return nil
	}

	cursor := NewCommitmentTree()
	if err := cursor.appendInner(w.cursorDepth, node); err != nil {
		return err
	}
	w.cursor = fn.Some(cursor)
	return nil
}

// Root returns the root of the tree as seen by the witness.
func (w *IncrementalWitness) Root() Node {
	return w.tree.rootInner(TreeDepth, w.filler())
}

// Path returns the authentication path of the witnessed leaf.
func (w *IncrementalWitness) Path() (*MerklePath, error) {
	filler := w.filler()
	path := &MerklePath{
		AuthPath: make([]PathElem, 0, TreeDepth),
		Position: w.Position(),
	}

	if w.tree.left.IsNone() {
		return nil, ErrNoPath
	}
	if w.tree.right.IsSome() {
		path.AuthPath = append(path.AuthPath, PathElem{
			Node: w.tree.left.UnwrapOr(Node{}), IsLeft: true,
		})
	} else {
		path.AuthPath = append(path.AuthPath, PathElem{
			Node: filler.next(0),
		})
	}

	for i := 0; i < TreeDepth-1; i++ {
		if i < len(w.tree.parents) && w.tree.parents[i].IsSome() {
			path.AuthPath = append(path.AuthPath, PathElem{
				Node:   w.tree.parents[i].UnwrapOr(Node{}),
				IsLeft: true,
			})
		} else {
			path.AuthPath = append(path.AuthPath, PathElem{
				Node: filler.next(i + 1),
			})
		}
	}

	return path, nil
}

// Clone returns a deep copy of the witness.
func (w *IncrementalWitness) Clone() *IncrementalWitness {
	c := &IncrementalWitness{
		tree:        w.tree.Clone(),
		filled:      append([]Node(nil), w.filled...),
		cursorDepth: w.cursorDepth,
		cursor:      fn.None[*CommitmentTree](),
	}
	w.cursor.WhenSome(func(t *CommitmentTree) {
		c.cursor = fn.Some(t.Clone())
	})
	return c
}

// Serialize writes the witness: the tree, the filled subtree roots and the
// optional cursor.
func (w *IncrementalWitness) Serialize(wr io.Writer) error {
	if err := w.tree.Serialize(wr); err != nil {
		return err
	}
	err := wire.WriteVarInt(wr, 0, uint64(len(w.filled)))
	if err != nil {
		return err
	}
	for _, n := range w.filled {
		if _, err := wr.Write(n[:]); err != nil {
			return err
		}
	}
	if w.cursor.IsNone() {
		_, err := wr.Write([]byte{0})
		return err
	}
	if _, err := wr.Write([]byte{1}); err != nil {
		return err
	}
	return w.cursor.UnwrapOr(nil).Serialize(wr)
}

// Bytes returns the serialized witness.
func (w *IncrementalWitness) Bytes() []byte {
	var buf bytes.Buffer
	_ = w.Serialize(&buf)
	return buf.Bytes()
}

// ReadIncrementalWitness reads a witness written by Serialize.
func ReadIncrementalWitness(r io.Reader) (*IncrementalWitness, error) {
	tree, err := ReadCommitmentTree(r)
	if err != nil {
		return nil, err
	}
	w := &IncrementalWitness{tree: tree, cursor: fn.None[*CommitmentTree]()}

	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if n > TreeDepth {
		return nil, fmt.Errorf("witness has %d filled nodes, max %d",
			n, TreeDepth)
	}
	for i := uint64(0); i < n; i++ {
		var node Node
		if _, err := io.ReadFull(r, node[:]); err != nil {
			return nil, err
		}
		w.filled = append(w.filled, node)
	}

	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, err
	}
	switch flag[0] {
	case 0:
	case 1:
		cursor, err := ReadCommitmentTree(r)
		if err != nil {
			return nil, err
		}
		w.cursor = fn.Some(cursor)
		w.cursorDepth = w.nextDepth()
	default:
		return nil, fmt.Errorf("invalid cursor flag %d", flag[0])
	}

	return w, nil
}

// ParseIncrementalWitness parses a serialized witness and rejects trailing
// data.
func ParseIncrementalWitness(b []byte) (*IncrementalWitness, error) {
	r := bytes.NewReader(b)
	w, err := ReadIncrementalWitness(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after witness",
			r.Len())
	}
	return w, nil
}

// PathElem is one sibling on an authentication path. IsLeft is set when the
// sibling is the left child.
type PathElem struct {
	Node   Node
	IsLeft bool
}

// MerklePath is the authentication path of a leaf, ordered from the leaf
// level up.
type MerklePath struct {
	AuthPath []PathElem
	Position uint64
}

// Root returns the root obtained by hashing leaf up the path.
func (p *MerklePath) Root(leaf Node) Node {
	cur := leaf
	for i, e := range p.AuthPath {
		if e.IsLeft {
			cur = combine(i, e.Node, cur)
		} else {
			cur = combine(i, cur, e.Node)
		}
	}
	return cur
}
