// Package stream implements the ordered message log at the center of the
// broker. Each stream (a room or a canonical DM pair) owns a gap-free
// monotonic sequence of messages, per-user read cursors, and per-message
// reaction state. Mutations return the canonical event to publish; an
// optional publish hook runs under the stream lock so that fan-out order
// always matches sequence order.
package stream

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/metrics"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// message is the internal mutable record. Text survives a tombstone for
// moderation; render strips it from every external view.
type message struct {
	id               types.MessageIdType
	scope            Scope
	authorID         types.UserIdType
	seq              uint64
	ts               time.Time
	parentID         types.MessageIdType
	contentType      string
	text             string
	attachments      []Attachment
	reactions        map[string]map[types.UserIdType]bool
	reactionOrder    []string
	tombstone        bool
	editedAt         time.Time
	moderationReason string
}

// render produces the external view of the message for a given viewer.
// viewer only affects the reactions' "me" flags; pass "" for none.
func (m *message) render(viewer types.UserIdType) *Message {
	out := &Message{
		ID:          m.id,
		RoomID:      m.scope.RoomID,
		AuthorID:    m.authorID,
		Seq:         m.seq,
		TS:          types.FormatTime(m.ts),
		ParentID:    m.parentID,
		ContentType: m.contentType,
		Tombstone:   m.tombstone,
	}
	if m.scope.IsDM() {
		// dm_peer_id is the counterpart relative to the author.
		if m.authorID == m.scope.DMA {
			out.DMPeerID = m.scope.DMB
		} else {
			out.DMPeerID = m.scope.DMA
		}
	}
	if !m.editedAt.IsZero() {
		out.EditedAt = types.FormatTime(m.editedAt)
	}
	if m.tombstone {
		out.ModerationReason = m.moderationReason
		return out
	}
	out.Text = m.text
	out.Attachments = append([]Attachment(nil), m.attachments...)
	out.Reactions = m.reactionCounts(viewer)
	return out
}

// reactionCounts summarizes the reaction sets in first-seen emoji order.
func (m *message) reactionCounts(viewer types.UserIdType) []ReactionCount {
	if len(m.reactionOrder) == 0 {
		return nil
	}
	out := make([]ReactionCount, 0, len(m.reactionOrder))
	for _, emoji := range m.reactionOrder {
		users := m.reactions[emoji]
		if len(users) == 0 {
			continue
		}
		out = append(out, ReactionCount{
			Emoji: emoji,
			Count: len(users),
			Me:    viewer != "" && users[viewer],
		})
	}
	return out
}

// stream holds one ordered log plus its cursors behind a single mutex.
type stream struct {
	mu      sync.Mutex
	scope   Scope
	nextSeq uint64
	// log is append-only; log[i].seq == firstSeq+i.
	log      []*message
	firstSeq uint64
	byID     map[types.MessageIdType]*message
	cursors  map[types.UserIdType]uint64
	lastTS   time.Time
}

// at returns the retained message with the given seq, or nil.
func (st *stream) at(seq uint64) *message {
	if seq < st.firstSeq || seq >= st.nextSeq {
		return nil
	}
	return st.log[seq-st.firstSeq]
}

// Engine owns every stream and the global message_id index.
type Engine struct {
	mu        sync.RWMutex
	streams   map[types.StreamKeyType]*stream
	byMessage map[types.MessageIdType]*stream
	clock     clock.PassiveClock

	maxMessageBytes int
	maxReactions    int
}

// Limits configure the engine's validation bounds.
type Limits struct {
	MaxMessageBytes        int
	MaxReactionsPerMessage int
}

// NewEngine returns an empty engine using the real clock.
func NewEngine(limits Limits) *Engine {
	return NewEngineWithClock(limits, clock.RealClock{})
}

// NewEngineWithClock returns an engine with an injected clock for tests.
func NewEngineWithClock(limits Limits, c clock.PassiveClock) *Engine {
	if limits.MaxMessageBytes <= 0 {
		limits.MaxMessageBytes = 4000
	}
	if limits.MaxReactionsPerMessage <= 0 {
		limits.MaxReactionsPerMessage = 20
	}
	return &Engine{
		streams:         make(map[types.StreamKeyType]*stream),
		byMessage:       make(map[types.MessageIdType]*stream),
		clock:           c,
		maxMessageBytes: limits.MaxMessageBytes,
		maxReactions:    limits.MaxReactionsPerMessage,
	}
}

// getOrCreate returns the stream for a scope, creating it on first use.
func (e *Engine) getOrCreate(scope Scope) *stream {
	key := scope.Key()
	e.mu.RLock()
	st, ok := e.streams[key]
	e.mu.RUnlock()
	if ok {
		return st
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.streams[key]; ok {
		return st
	}
	st = &stream{
		scope:    scope,
		nextSeq:  1,
		firstSeq: 1,
		byID:     make(map[types.MessageIdType]*message),
		cursors:  make(map[types.UserIdType]uint64),
	}
	e.streams[key] = st
	return st
}

// lookup returns the stream for a scope without creating it.
func (e *Engine) lookup(scope Scope) (*stream, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.streams[scope.Key()]
	return st, ok
}

// streamOf finds the stream holding a message.
func (e *Engine) streamOf(id types.MessageIdType) (*stream, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.byMessage[id]
	return st, ok
}

// ScopeOf returns the fan-out scope of the stream containing the message.
func (e *Engine) ScopeOf(id types.MessageIdType) (Scope, bool) {
	st, ok := e.streamOf(id)
	if !ok {
		return Scope{}, false
	}
	return st.scope, true
}

// now returns a timestamp that never runs behind the stream's last emitted
// one, keeping ts monotonic with respect to seq. Caller holds st.mu.
func (e *Engine) now(st *stream) time.Time {
	t := e.clock.Now()
	if t.Before(st.lastTS) {
		t = st.lastTS
	}
	st.lastTS = t
	return t
}

// PublishFunc receives the canonical event while the stream lock is held,
// guaranteeing fan-out order matches sequence order. It must not block.
type PublishFunc func(Event)

// Post appends a message to the stream and returns the MessageCreated
// event. parentID, when set, must name a message in the same stream.
func (e *Engine) Post(scope Scope, author types.UserIdType, text, contentType string, parentID types.MessageIdType, attachments []Attachment, publish PublishFunc) (Event, error) {
	if len(text) > e.maxMessageBytes {
		return Event{}, apierr.BadRequest("text exceeds %d bytes", e.maxMessageBytes)
	}
	if text == "" && len(attachments) == 0 {
		return Event{}, apierr.BadRequest("message needs text or attachments")
	}
	if contentType == "" {
		contentType = "text/plain"
	}

	st := e.getOrCreate(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	if parentID != "" {
		if _, ok := st.byID[parentID]; !ok {
			return Event{}, apierr.BadRequest("parent_id does not resolve to a message in this stream")
		}
	}

	m := &message{
		id:          types.MessageIdType(types.NewID()),
		scope:       scope,
		authorID:    author,
		seq:         st.nextSeq,
		ts:          e.now(st),
		parentID:    parentID,
		contentType: contentType,
		text:        text,
		attachments: append([]Attachment(nil), attachments...),
		reactions:   make(map[string]map[types.UserIdType]bool),
	}
	st.nextSeq++
	st.log = append(st.log, m)
	st.byID[m.id] = m

	e.mu.Lock()
	e.byMessage[m.id] = st
	e.mu.Unlock()

	metrics.MessagesPosted.WithLabelValues("post", scope.kindLabel()).Inc()
	ev := Event{Type: EventMessageCreate, Message: m.render(""), Scope: scope}
	if publish != nil {
		publish(ev)
	}
	return ev, nil
}

// Edit updates a message's text and/or attachments. Only the author may
// edit; seq and ts are preserved.
func (e *Engine) Edit(id types.MessageIdType, caller types.UserIdType, text *string, attachments []Attachment, publish PublishFunc) (Event, error) {
	if text != nil && len(*text) > e.maxMessageBytes {
		return Event{}, apierr.BadRequest("text exceeds %d bytes", e.maxMessageBytes)
	}

	st, ok := e.streamOf(id)
	if !ok {
		return Event{}, apierr.NotFound("message %s does not exist", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	m := st.byID[id]
	if m == nil {
		return Event{}, apierr.NotFound("message %s does not exist", id)
	}
	if m.authorID != caller {
		return Event{}, apierr.Forbidden("only the author may edit a message")
	}
	if m.tombstone {
		return Event{}, apierr.Forbidden("cannot edit a deleted message")
	}

	if text != nil {
		m.text = *text
	}
	if attachments != nil {
		m.attachments = append([]Attachment(nil), attachments...)
	}
	m.editedAt = e.now(st)

	metrics.MessagesPosted.WithLabelValues("edit", st.scope.kindLabel()).Inc()
	ev := Event{Type: EventMessageEdit, Message: m.render(""), Scope: st.scope}
	if publish != nil {
		publish(ev)
	}
	return ev, nil
}

// Tombstone marks a message deleted while keeping its sequence position.
// allowModerate grants deletion beyond the author (purge permission).
func (e *Engine) Tombstone(id types.MessageIdType, caller types.UserIdType, allowModerate bool, reason string, publish PublishFunc) (Event, error) {
	st, ok := e.streamOf(id)
	if !ok {
		return Event{}, apierr.NotFound("message %s does not exist", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	m := st.byID[id]
	if m == nil {
		return Event{}, apierr.NotFound("message %s does not exist", id)
	}
	if m.authorID != caller && !allowModerate {
		return Event{}, apierr.Forbidden("not allowed to delete this message")
	}

	m.tombstone = true
	m.moderationReason = reason

	metrics.MessagesPosted.WithLabelValues("delete", st.scope.kindLabel()).Inc()
	ev := Event{
		Type:      EventMessageDelete,
		MessageID: m.id,
		RoomID:    st.scope.RoomID,
		TS:        types.FormatTime(e.now(st)),
		Scope:     st.scope,
	}
	if st.scope.IsDM() {
		if m.authorID == st.scope.DMA {
			ev.DMPeerID = st.scope.DMB
		} else {
			ev.DMPeerID = st.scope.DMA
		}
	}
	if publish != nil {
		publish(ev)
	}
	return ev, nil
}

// React adds or removes caller's reaction. Adding twice is a no-op; the
// returned event always carries the full reaction summary.
func (e *Engine) React(id types.MessageIdType, caller types.UserIdType, emoji string, add bool, publish PublishFunc) (Event, error) {
	if emoji == "" {
		return Event{}, apierr.BadRequest("emoji is required")
	}

	st, ok := e.streamOf(id)
	if !ok {
		return Event{}, apierr.NotFound("message %s does not exist", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	m := st.byID[id]
	if m == nil {
		return Event{}, apierr.NotFound("message %s does not exist", id)
	}
	if m.tombstone {
		return Event{}, apierr.NotFound("message %s does not exist", id)
	}

	if add {
		users, ok := m.reactions[emoji]
		if !ok {
			if len(m.reactionOrder) >= e.maxReactions {
				return Event{}, apierr.BadRequest("message already has %d distinct reactions", e.maxReactions)
			}
			users = make(map[types.UserIdType]bool)
			m.reactions[emoji] = users
			m.reactionOrder = append(m.reactionOrder, emoji)
		}
		users[caller] = true
	} else if users, ok := m.reactions[emoji]; ok {
		delete(users, caller)
		if len(users) == 0 {
			delete(m.reactions, emoji)
			for i, em := range m.reactionOrder {
				if em == emoji {
					m.reactionOrder = append(m.reactionOrder[:i:i], m.reactionOrder[i+1:]...)
					break
				}
			}
		}
	}

	evType := EventReactionAdd
	if !add {
		evType = EventReactionRemove
	}
	metrics.MessagesPosted.WithLabelValues("react", st.scope.kindLabel()).Inc()
	ev := Event{
		Type:      evType,
		MessageID: m.id,
		RoomID:    st.scope.RoomID,
		Emoji:     emoji,
		Counts:    m.reactionCounts(""),
		Scope:     st.scope,
	}
	if publish != nil {
		publish(ev)
	}
	return ev, nil
}

// GetMessage returns the external view of one message for a viewer.
func (e *Engine) GetMessage(id types.MessageIdType, viewer types.UserIdType) (Message, error) {
	st, ok := e.streamOf(id)
	if !ok {
		return Message{}, apierr.NotFound("message %s does not exist", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	m := st.byID[id]
	if m == nil {
		return Message{}, apierr.NotFound("message %s does not exist", id)
	}
	return *m.render(viewer), nil
}

// kindLabel tags metrics by stream kind.
func (s Scope) kindLabel() string {
	if s.IsDM() {
		return "dm"
	}
	return "room"
}
