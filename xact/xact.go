// Package xact tracks PostgreSQL transaction lifecycle from a stream
// of decoded WAL records: active, committed, aborted and prepared
// states, and the subtransaction forest linking child xids to their
// parents.
package xact

import (
	"fmt"

	"github.com/nyx-wal/pgwal/cursor"
	"github.com/nyx-wal/pgwal/lsn"
	"github.com/nyx-wal/pgwal/wal"
)

// State is a transaction's lifecycle state.
type State int

const (
	StateInProgress State = iota
	StateCommitted
	StateAborted
	StatePrepared
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	case StatePrepared:
		return "prepared"
	default:
		return "unknown"
	}
}

// Transaction-rmgr opcodes: the high nibble of a Transaction-rmgr
// record's Info byte. Dispatch uses Info&0x70, per spec's explicit
// table rather than the narrower XLR_INFO_MASK(0x0F) the original
// Python source's get_info() applies before this same comparison (a
// latent bug there; see DESIGN.md).
const (
	opCommit         = 0x00
	opAbort          = 0x10
	opPrepare        = 0x20
	opCommitPrepared = 0x30
	opAbortPrepared  = 0x40
	opAssignment     = 0x50
	opInvalid        = 0x60
	opMask           = 0x70
)

// Info holds everything the tracker knows about one transaction.
type Info struct {
	XID       uint32
	State     State
	StartLSN  string
	CommitLSN string
	Records   []*wal.Record
	Subxids   map[uint32]struct{}
	ParentXID *uint32
}

// LateRecord is returned by Process when a record targets a xid that
// has already reached a terminal state. Per spec.md's Open Question
// resolution this is surfaced rather than silently dropped; it is
// never fatal. Process also returns it, with State in_progress, for a
// Transaction record carrying the 0x60 INVALID opcode.
type LateRecord struct {
	XID   uint32
	State State
}

func (e *LateRecord) Error() string {
	return fmt.Sprintf("xact: record for xid %d arrived after it reached terminal state %s", e.XID, e.State)
}

// Stats summarizes the tracker's counters.
type Stats struct {
	TotalSeen      int
	CommittedCount int
	AbortedCount   int
	ActiveCount    int
}

// Tracker owns the transaction maps exclusively; nothing else may
// mutate them, per spec.md §5.
type Tracker struct {
	active    map[uint32]*Info
	committed map[uint32]*Info
	aborted   map[uint32]*Info

	subxidParent map[uint32]uint32

	totalSeen      int
	committedCount int
	abortedCount   int

	// committedOrder records xids in the order their terminal
	// transition happened, making Go's unordered maps produce the same
	// "insertion order" AllCommittedRecords relies on in the original.
	committedOrder []uint32
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		active:       make(map[uint32]*Info),
		committed:    make(map[uint32]*Info),
		aborted:      make(map[uint32]*Info),
		subxidParent: make(map[uint32]uint32),
	}
}

// Reset discards all tracked state, for reuse across segments.
func (t *Tracker) Reset() {
	*t = *New()
}

func (t *Tracker) getOrCreateActive(xid uint32, startLSN lsn.LSN) *Info {
	if info, ok := t.active[xid]; ok {
		return info
	}
	info := &Info{
		XID:      xid,
		State:    StateInProgress,
		StartLSN: startLSN.String(),
		Subxids:  make(map[uint32]struct{}),
	}
	t.active[xid] = info
	return info
}

// Process feeds one decoded record into the tracker. It never returns
// a fatal error: a *LateRecord return value is a diagnostic, not a
// failure. A record whose xid has already reached a terminal state is
// dropped and reported as *LateRecord.
func (t *Tracker) Process(rec *wal.Record) error {
	t.totalSeen++

	if rec.XID != 0 {
		if late := t.checkTerminal(rec.XID); late != nil {
			return late
		}
	}

	if rec.Rmid == wal.RmgrTransaction {
		return t.processTransactionRecord(rec)
	}

	if rec.XID != 0 {
		info := t.getOrCreateActive(rec.XID, rec.StartLSN)
		info.Records = append(info.Records, rec)
	}
	return nil
}

func (t *Tracker) processTransactionRecord(rec *wal.Record) error {
	op := rec.Info & opMask

	switch op {
	case opCommit:
		return t.commit(rec.XID, rec.PrevLSN)
	case opAbort:
		return t.abort(rec.XID, rec.PrevLSN)
	case opPrepare:
		info := t.getOrCreateActive(rec.XID, rec.StartLSN)
		info.State = StatePrepared
		return nil
	case opCommitPrepared:
		return t.commit(rec.XID, rec.PrevLSN)
	case opAbortPrepared:
		return t.abort(rec.XID, rec.PrevLSN)
	case opAssignment:
		parent, subxids := parseAssignment(rec.XID, rec.MainData)
		for _, sub := range subxids {
			t.AddSubtransaction(parent, sub)
		}
		return nil
	case opInvalid:
		return &LateRecord{XID: rec.XID, State: StateInProgress}
	default:
		info := t.getOrCreateActive(rec.XID, rec.StartLSN)
		info.Records = append(info.Records, rec)
		return nil
	}
}

// parseAssignment decodes XLOG_XACT_ASSIGNMENT's main data as
// {parent_xid: u32, subxids: []u32}. Neither the original source nor
// the teacher demonstrates a real wire format for this record (the
// Python original's _process_assignment is a no-op stub); this is the
// simplest encoding consistent with spec.md §4.4's "the listed
// subxids", documented in DESIGN.md.
func parseAssignment(recordXID uint32, mainData []byte) (parent uint32, subxids []uint32) {
	c := cursor.New(mainData)
	p, err := c.ReadU32()
	if err != nil {
		return recordXID, nil
	}
	parent = p
	for {
		sub, err := c.ReadU32()
		if err != nil {
			break
		}
		subxids = append(subxids, sub)
	}
	return parent, subxids
}

func (t *Tracker) commit(xid uint32, prevLSN lsn.LSN) error {
	return t.transitionTo(xid, StateCommitted, prevLSN)
}

func (t *Tracker) abort(xid uint32, prevLSN lsn.LSN) error {
	return t.transitionTo(xid, StateAborted, prevLSN)
}

func (t *Tracker) transitionTo(xid uint32, target State, prevLSN lsn.LSN) error {
	if late := t.checkTerminal(xid); late != nil {
		return late
	}

	info := t.getOrCreateActive(xid, prevLSN)
	info.State = target
	info.CommitLSN = prevLSN.String()
	delete(t.active, xid)

	switch target {
	case StateCommitted:
		t.committed[xid] = info
		t.committedCount++
	case StateAborted:
		t.aborted[xid] = info
		t.abortedCount++
	}
	t.committedOrder = append(t.committedOrder, xid)

	// Propagate the same transition to every subxid, per spec.md's
	// tie-break rule: the parent's terminal transition always wins.
	for sub := range info.Subxids {
		t.propagateToSub(sub, target, prevLSN)
	}
	return nil
}

func (t *Tracker) propagateToSub(sub uint32, target State, prevLSN lsn.LSN) {
	if t.checkTerminal(sub) != nil {
		return
	}
	info := t.getOrCreateActive(sub, prevLSN)
	info.State = target
	info.CommitLSN = prevLSN.String()
	delete(t.active, sub)

	switch target {
	case StateCommitted:
		t.committed[sub] = info
		t.committedCount++
	case StateAborted:
		t.aborted[sub] = info
		t.abortedCount++
	}
	t.committedOrder = append(t.committedOrder, sub)
}

func (t *Tracker) checkTerminal(xid uint32) *LateRecord {
	if info, ok := t.committed[xid]; ok {
		return &LateRecord{XID: xid, State: info.State}
	}
	if info, ok := t.aborted[xid]; ok {
		return &LateRecord{XID: xid, State: info.State}
	}
	return nil
}

// AddSubtransaction records the sub -> parent link, ensures the
// parent's Subxids set contains sub, and creates an active entry for
// sub (with ParentXID set) if one does not already exist.
func (t *Tracker) AddSubtransaction(parent, sub uint32) {
	t.subxidParent[sub] = parent

	parentInfo := t.getOrCreateActive(parent, 0)
	parentInfo.Subxids[sub] = struct{}{}

	if _, ok := t.active[sub]; !ok {
		if _, committed := t.committed[sub]; committed {
			return
		}
		if _, aborted := t.aborted[sub]; aborted {
			return
		}
		p := parent
		subInfo := t.getOrCreateActive(sub, 0)
		subInfo.ParentXID = &p
	}
}

// Get searches active, then committed, then aborted.
func (t *Tracker) Get(xid uint32) (*Info, bool) {
	if info, ok := t.active[xid]; ok {
		return info, true
	}
	if info, ok := t.committed[xid]; ok {
		return info, true
	}
	if info, ok := t.aborted[xid]; ok {
		return info, true
	}
	return nil, false
}

func (t *Tracker) IsActive(xid uint32) bool {
	_, ok := t.active[xid]
	return ok
}

func (t *Tracker) IsCommitted(xid uint32) bool {
	_, ok := t.committed[xid]
	return ok
}

func (t *Tracker) IsAborted(xid uint32) bool {
	_, ok := t.aborted[xid]
	return ok
}

// RecordsOf returns the records attributed directly to xid, or nil if
// xid is unknown.
func (t *Tracker) RecordsOf(xid uint32) []*wal.Record {
	if info, ok := t.Get(xid); ok {
		return info.Records
	}
	return nil
}

// AllCommittedRecords concatenates every committed transaction's
// records in the order those transactions reached the committed
// state; within one transaction, record order is preserved.
func (t *Tracker) AllCommittedRecords() []*wal.Record {
	var out []*wal.Record
	for _, xid := range t.committedOrder {
		if info, ok := t.committed[xid]; ok {
			out = append(out, info.Records...)
		}
	}
	return out
}

// GetParent returns the parent xid registered via AddSubtransaction,
// if any.
func (t *Tracker) GetParent(xid uint32) (uint32, bool) {
	p, ok := t.subxidParent[xid]
	return p, ok
}

// CommittedXIDs returns every committed transaction's xid, in the
// order those transactions reached the committed state.
func (t *Tracker) CommittedXIDs() []uint32 {
	var out []uint32
	for _, xid := range t.committedOrder {
		if _, ok := t.committed[xid]; ok {
			out = append(out, xid)
		}
	}
	return out
}

// AbortedXIDs returns every aborted transaction's xid, in the order
// those transactions reached the aborted state.
func (t *Tracker) AbortedXIDs() []uint32 {
	var out []uint32
	for _, xid := range t.committedOrder {
		if _, ok := t.aborted[xid]; ok {
			out = append(out, xid)
		}
	}
	return out
}

// Stats returns the tracker's running counters plus current active
// cardinality.
func (t *Tracker) Stats() Stats {
	return Stats{
		TotalSeen:      t.totalSeen,
		CommittedCount: t.committedCount,
		AbortedCount:   t.abortedCount,
		ActiveCount:    len(t.active),
	}
}
