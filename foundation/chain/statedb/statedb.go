// Package statedb implements the versioned object store the consensus
// core mutates. Every entity lives in a typed table; all mutation flows
// through Create/Modify/Remove so that undo sessions can roll any batch
// of changes back byte-exactly. Sessions nest: a child session squashes
// into its parent or reverts alone, and pushed sessions remain on the
// undo stack so whole blocks can be popped later.
package statedb

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// ErrSessionOrder indicates sessions were ended out of LIFO order or the
// store was asked to undo with no pushed sessions remaining.
var ErrSessionOrder = errors.New("undo sessions must end in LIFO order")

// =============================================================================

// tableState is the behavior the store requires from every registered
// table to coordinate the undo stack across all of them.
type tableState interface {
	begin()
	revertTop()
	squashTop()
	dropBottom()
}

// Store coordinates undo sessions and revisions across the registered
// tables. The zero depth state is the committed, irreversible state.
type Store struct {
	tables  []tableState
	baseRev int64
	depth   int
}

// register wires a table into the store's undo coordination.
func (s *Store) register(t tableState) {
	s.tables = append(s.tables, t)
}

// Revision returns the revision of the current (possibly undoable) state.
func (s *Store) Revision() int64 {
	return s.baseRev + int64(s.depth)
}

// SetRevision rebases the committed revision counter. It is only legal
// while no undo state is held, e.g. right after open or wipe.
func (s *Store) SetRevision(rev int64) error {
	if s.depth != 0 {
		return errors.Wrap(ErrSessionOrder, "set revision with live undo sessions")
	}
	s.baseRev = rev
	return nil
}

// StartUndoSession opens a new nested session. A disabled session is a
// no-op handle, used while replaying trusted blocks during reindex.
func (s *Store) StartUndoSession(enabled bool) *Session {
	if !enabled {
		return &Session{store: s}
	}

	for _, t := range s.tables {
		t.begin()
	}
	s.depth++

	return &Session{store: s, live: true, rev: s.Revision()}
}

// Undo reverts the most recently pushed session. This is how a block is
// popped after it was applied and committed to the undo stack.
func (s *Store) Undo() error {
	if s.depth == 0 {
		return errors.Wrap(ErrSessionOrder, "undo on empty stack")
	}

	for _, t := range s.tables {
		t.revertTop()
	}
	s.depth--

	return nil
}

// Commit discards undo information up to and including the specified
// revision. Those states become irreversible.
func (s *Store) Commit(rev int64) {
	for s.baseRev < rev && s.depth > 0 {
		for _, t := range s.tables {
			t.dropBottom()
		}
		s.baseRev++
		s.depth--
	}
}

// UndoAll reverts every session still on the stack.
func (s *Store) UndoAll() error {
	for s.depth > 0 {
		if err := s.Undo(); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================

// Session is a handle over one reversible batch of mutations. Exactly one
// of Push, Squash or Undo must finish a live session; the idiomatic use
// is `defer ses.Undo()` with a later `ses.Push()` on success, since Undo
// on a finished session is a no-op.
type Session struct {
	store *Store
	live  bool
	rev   int64
	done  bool
}

// Push keeps the session's changes and leaves its undo state on the
// stack so Store.Undo can reverse it later.
func (se *Session) Push() {
	if !se.live || se.done {
		return
	}
	se.done = true
}

// Squash merges the session's changes into its parent session.
func (se *Session) Squash() error {
	if !se.live || se.done {
		return nil
	}
	if err := se.checkTop(); err != nil {
		return err
	}

	for _, t := range se.store.tables {
		t.squashTop()
	}
	se.store.depth--
	se.done = true

	return nil
}

// Undo reverts every mutation performed under the session, including any
// squashed children. Safe to defer: it does nothing once the session was
// pushed or squashed.
func (se *Session) Undo() error {
	if !se.live || se.done {
		return nil
	}
	if err := se.checkTop(); err != nil {
		return err
	}

	for _, t := range se.store.tables {
		t.revertTop()
	}
	se.store.depth--
	se.done = true

	return nil
}

func (se *Session) checkTop() error {
	if se.rev != se.store.Revision() {
		return errors.Wrapf(ErrSessionOrder, "session rev %d, store rev %d", se.rev, se.store.Revision())
	}
	if se.store.depth == 0 {
		return errors.Wrap(ErrSessionOrder, "no undo state held")
	}
	return nil
}

// =============================================================================

// keyed is the identity behavior every stored object embeds via ID.
type keyed interface {
	objectID() uint64
	setObjectID(uint64)
}

// ID is the primary key every stored entity embeds.
type ID uint64

func (id ID) objectID() uint64      { return uint64(id) }
func (id *ID) setObjectID(v uint64) { *id = ID(v) }

// object is the constraint stored types satisfy: identity plus a deep
// copy used for undo pre-images.
type object[T any] interface {
	clone() T
}

// =============================================================================

// Table stores all live instances of one entity type keyed by ID, along
// with the undo layers currently held for it.
type Table[T any, PT interface {
	*T
	keyed
	object[T]
}] struct {
	name   string
	rows   map[uint64]*T
	next   uint64
	layers []*layer[T]
}

// layer holds the undo information of one session depth for one table.
type layer[T any] struct {
	oldValues map[uint64]*T
	created   map[uint64]bool
	removed   map[uint64]*T
	oldNext   uint64
}

// NewTable constructs a table and registers it with the store.
func NewTable[T any, PT interface {
	*T
	keyed
	object[T]
}](s *Store, name string) *Table[T, PT] {
	t := Table[T, PT]{
		name: name,
		rows: make(map[uint64]*T),
	}
	s.register(&t)
	return &t
}

func (t *Table[T, PT]) top() *layer[T] {
	if len(t.layers) == 0 {
		return nil
	}
	return t.layers[len(t.layers)-1]
}

// Create allocates the next id, runs the initializer and stores the row.
func (t *Table[T, PT]) Create(init func(PT)) PT {
	var row T
	pt := PT(&row)
	pt.setObjectID(t.next)
	init(pt)

	// The initializer must not reassign the identity.
	pt.setObjectID(t.next)

	t.rows[t.next] = &row
	if top := t.top(); top != nil {
		top.created[t.next] = true
	}
	t.next++

	return pt
}

// Modify applies the mutator to the row, preserving the pre-image for
// undo on first touch within the current session.
func (t *Table[T, PT]) Modify(row PT, mutate func(PT)) {
	id := row.objectID()
	if _, exists := t.rows[id]; !exists {
		panic(fmt.Sprintf("statedb: modify of unknown %s row %d", t.name, id))
	}

	if top := t.top(); top != nil && !top.created[id] {
		if _, touched := top.oldValues[id]; !touched {
			pre := row.clone()
			top.oldValues[id] = &pre
		}
	}

	mutate(row)

	if row.objectID() != id {
		panic(fmt.Sprintf("statedb: mutator reassigned %s row id %d", t.name, id))
	}
}

// Remove deletes the row, retaining whatever image undo needs.
func (t *Table[T, PT]) Remove(row PT) {
	id := row.objectID()
	if _, exists := t.rows[id]; !exists {
		panic(fmt.Sprintf("statedb: remove of unknown %s row %d", t.name, id))
	}

	if top := t.top(); top != nil {
		switch {
		case top.created[id]:
			delete(top.created, id)

		case top.oldValues[id] != nil:
			top.removed[id] = top.oldValues[id]
			delete(top.oldValues, id)

		default:
			pre := row.clone()
			top.removed[id] = &pre
		}
	}

	delete(t.rows, id)
}

// Get returns the row with the given id, or nil.
func (t *Table[T, PT]) Get(id uint64) PT {
	row, exists := t.rows[id]
	if !exists {
		return nil
	}
	return PT(row)
}

// Count returns the number of live rows.
func (t *Table[T, PT]) Count() int {
	return len(t.rows)
}

// Find returns the first row matching the predicate, scanning in id
// order so the result is deterministic across nodes.
func (t *Table[T, PT]) Find(match func(PT) bool) PT {
	for _, id := range t.sortedIDs() {
		row := PT(t.rows[id])
		if match(row) {
			return row
		}
	}
	return nil
}

// All returns every row ordered by the provided comparison, or by id
// when the comparison is nil. The returned slice is a fresh index over
// the live rows; the rows themselves are not copies.
func (t *Table[T, PT]) All(less func(a, b PT) bool) []PT {
	out := make([]PT, 0, len(t.rows))
	for _, id := range t.sortedIDs() {
		out = append(out, PT(t.rows[id]))
	}
	if less != nil {
		sortStable(out, less)
	}
	return out
}

func (t *Table[T, PT]) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sortStable(ids, func(a, b uint64) bool { return a < b })
	return ids
}

// =============================================================================
// Undo coordination. Only the Store calls these.

func (t *Table[T, PT]) begin() {
	t.layers = append(t.layers, &layer[T]{
		oldValues: make(map[uint64]*T),
		created:   make(map[uint64]bool),
		removed:   make(map[uint64]*T),
		oldNext:   t.next,
	})
}

func (t *Table[T, PT]) revertTop() {
	top := t.top()

	for id := range top.created {
		delete(t.rows, id)
	}
	for id, pre := range top.oldValues {
		t.rows[id] = pre
	}
	for id, pre := range top.removed {
		t.rows[id] = pre
	}
	t.next = top.oldNext

	t.layers = t.layers[:len(t.layers)-1]
}

func (t *Table[T, PT]) squashTop() {
	top := t.top()
	parent := t.layers[len(t.layers)-2]

	for id := range top.created {
		parent.created[id] = true
	}

	for id, pre := range top.oldValues {
		if parent.created[id] {
			continue
		}
		if _, touched := parent.oldValues[id]; !touched {
			parent.oldValues[id] = pre
		}
	}

	for id, pre := range top.removed {
		switch {
		case parent.created[id]:
			delete(parent.created, id)

		case parent.oldValues[id] != nil:
			parent.removed[id] = parent.oldValues[id]
			delete(parent.oldValues, id)

		default:
			parent.removed[id] = pre
		}
	}

	t.layers = t.layers[:len(t.layers)-1]
}

func (t *Table[T, PT]) dropBottom() {
	t.layers = t.layers[1:]
}

// =============================================================================

func sortStable[E any](s []E, less func(a, b E) bool) {
	sort.SliceStable(s, func(i, j int) bool { return less(s[i], s[j]) })
}
