package stream

import (
	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// DefaultReadLimit bounds reads when the caller does not supply a limit.
const DefaultReadLimit = 50

// MaxReadLimit is the hard ceiling on a single read.
const MaxReadLimit = 200

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultReadLimit
	}
	if limit > MaxReadLimit {
		return MaxReadLimit
	}
	return limit
}

// ForwardRead returns messages with seq >= fromSeq in ascending order, at
// most limit of them, plus the next seq to resume from. Reads starting
// inside a pruned range surface history_pruned.
func (e *Engine) ForwardRead(scope Scope, fromSeq uint64, limit int, viewer types.UserIdType) ([]Message, uint64, error) {
	limit = clampLimit(limit)
	if fromSeq == 0 {
		fromSeq = 1
	}

	st, ok := e.lookup(scope)
	if !ok {
		return []Message{}, 1, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if fromSeq < st.firstSeq {
		return nil, 0, apierr.HistoryPruned("messages before seq %d have been pruned", st.firstSeq)
	}

	out := make([]Message, 0, limit)
	for seq := fromSeq; seq < st.nextSeq && len(out) < limit; seq++ {
		out = append(out, *st.at(seq).render(viewer))
	}
	next := st.nextSeq
	if len(out) > 0 {
		next = out[len(out)-1].Seq + 1
	}
	return out, next, nil
}

// BackfillRead returns the last limit messages with seq < beforeSeq, in
// ascending order, plus the seq of the earliest returned message (0 when
// empty). beforeSeq of 0 means "from the end".
func (e *Engine) BackfillRead(scope Scope, beforeSeq uint64, limit int, viewer types.UserIdType) ([]Message, uint64, error) {
	limit = clampLimit(limit)

	st, ok := e.lookup(scope)
	if !ok {
		return []Message{}, 0, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if beforeSeq == 0 {
		beforeSeq = st.nextSeq
	}
	if beforeSeq <= st.firstSeq {
		if st.firstSeq > 1 {
			return nil, 0, apierr.HistoryPruned("messages before seq %d have been pruned", st.firstSeq)
		}
		return []Message{}, 0, nil
	}

	end := beforeSeq
	if end > st.nextSeq {
		end = st.nextSeq
	}
	start := st.firstSeq
	if end-start > uint64(limit) {
		start = end - uint64(limit)
	}
	out := make([]Message, 0, end-start)
	for seq := start; seq < end; seq++ {
		out = append(out, *st.at(seq).render(viewer))
	}
	var prev uint64
	if len(out) > 0 {
		prev = out[0].Seq
	}
	return out, prev, nil
}

// SetCursor advances the user's read cursor; cursors only move forward.
func (e *Engine) SetCursor(scope Scope, userID types.UserIdType, seq uint64) {
	st := e.getOrCreate(scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	if seq > st.cursors[userID] {
		st.cursors[userID] = seq
	}
}

// GetCursor returns the user's cursor for a stream, defaulting to 0.
func (e *Engine) GetCursor(scope Scope, userID types.UserIdType) uint64 {
	st, ok := e.lookup(scope)
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cursors[userID]
}

// NextSeq returns the stream's next sequence number (1 for a fresh stream).
func (e *Engine) NextSeq(scope Scope) uint64 {
	st, ok := e.lookup(scope)
	if !ok {
		return 1
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.nextSeq
}

// Prune drops retained messages with seq < beforeSeq. Sequence numbers are
// never reused; later reads into the dropped range report history_pruned.
func (e *Engine) Prune(scope Scope, beforeSeq uint64) int {
	st, ok := e.lookup(scope)
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if beforeSeq > st.nextSeq {
		beforeSeq = st.nextSeq
	}
	if beforeSeq <= st.firstSeq {
		return 0
	}
	n := int(beforeSeq - st.firstSeq)
	dropped := st.log[:n]
	st.log = st.log[n:]
	st.firstSeq = beforeSeq

	e.mu.Lock()
	for _, m := range dropped {
		delete(e.byMessage, m.id)
	}
	e.mu.Unlock()
	for _, m := range dropped {
		delete(st.byID, m.id)
	}
	return n
}
