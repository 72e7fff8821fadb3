// Package session is the reconciliation core: it owns the ordered event log,
// the chat timeline, the derived caches and the connection state machine for
// one conversation. A single loop goroutine applies every mutation and serves
// every read, so no two operations ever interleave; readers get copies.
package session

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/harunnryd/kaiwa/internal/concurrency"
	"github.com/harunnryd/kaiwa/internal/config"
	"github.com/harunnryd/kaiwa/internal/dedup"
	"github.com/harunnryd/kaiwa/internal/errors"
	"github.com/harunnryd/kaiwa/internal/event"
	"github.com/harunnryd/kaiwa/internal/message"
	"github.com/harunnryd/kaiwa/internal/transport"
)

type operation int

const (
	opConnectPrepare operation = iota
	opConnectAbort
	opDisconnectMark
	opAdapterConnected
	opAdapterDisconnected
	opAdapterError
	opAdapterStatus
	opIngest
	opGate
	opSubscribe
	opUnsubscribe
	opAttachSink
	opReset
	opSnapshot
	opInspect
	opMessages
	opEvents
	opFileContent
	opTerminal
)

type request struct {
	op       operation
	payload  interface{}
	result   chan error
	response chan interface{}
}

// gatePayload is the loop-side half of an outbound command: the Connected
// check plus, for message sends, the optimistic echo registration. Both must
// apply atomically with respect to ingestion.
type gatePayload struct {
	echo *message.Message
}

type pendingEcho struct {
	text   string
	sentAt time.Time
}

// inspection is the cheap read bundle behind State/Flags/Error/ConversationID.
type inspection struct {
	conversationID string
	state          ConnState
	flags          Flags
	err            string
}

// Store reconciles one session. All fields below inbox are owned by the loop
// goroutine; lastEventID is mirrored atomically for the reconnect cursor.
type Store struct {
	adapter     Adapter
	endpoint    string
	echoWindow  time.Duration
	sendTimeout time.Duration
	notifyBuf   int

	inbox   chan request
	quit    chan struct{}
	wg      sync.WaitGroup
	running stdatomic.Bool

	lastEventID stdatomic.Int64
	now         func() time.Time

	conversationID string
	adapterActive  bool
	state          ConnState
	flags          Flags
	sessionErr     string
	events         []*event.Event
	seen           *dedup.Store
	messages       []message.Message
	files          map[string]string
	terminal       []TerminalEntry
	pages          map[string]PageSnapshot
	pending        []pendingEcho
	sink           EventSink
	subscribers    map[int]chan Change
	nextSubID      int
}

// New builds a store bound to the configured endpoint. Call Start before use.
func New(cfg *config.Config, adapter Adapter) (*Store, error) {
	echoWindow, err := config.DurationOrDefault(cfg.Session.EchoSuppressWindow, config.DefaultSessionEchoSuppressWindow)
	if err != nil {
		return nil, fmt.Errorf("session.echo_suppress_window: %w", err)
	}
	sendTimeout, err := config.DurationOrDefault(cfg.Transport.WriteTimeout, config.DefaultTransportWriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport.write_timeout: %w", err)
	}
	inboxSize := cfg.Session.InboxSize
	if inboxSize <= 0 {
		inboxSize = config.DefaultSessionInboxSize
	}
	notifyBuf := cfg.Session.NotifyBuffer
	if notifyBuf <= 0 {
		notifyBuf = config.DefaultSessionNotifyBuffer
	}

	return &Store{
		adapter:     adapter,
		endpoint:    strings.TrimSpace(cfg.Server.BaseURL),
		echoWindow:  echoWindow,
		sendTimeout: sendTimeout,
		notifyBuf:   notifyBuf,
		inbox:       make(chan request, inboxSize),
		quit:        make(chan struct{}),
		now:         time.Now,
		seen:        dedup.NewStore(),
		files:       make(map[string]string),
		pages:       make(map[string]PageSnapshot),
		subscribers: make(map[int]chan Change),
	}, nil
}

func (s *Store) Start() {
	s.wg.Add(1)
	concurrency.SafeGo("session.loop", s.loop, nil)
}

// Stop ends the loop and closes all subscriber channels. Disconnect the
// adapter first so no callback arrives after the loop is gone.
func (s *Store) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Store) loop() {
	defer s.wg.Done()
	slog.Info("Session store started")
	s.running.Store(true)
	defer func() {
		s.running.Store(false)
		for id, ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, id)
		}
		slog.Info("Session store stopped")
	}()

	for {
		select {
		case req := <-s.inbox:
			err := s.handle(req)
			if req.result != nil {
				req.result <- err
			}
		case <-s.quit:
			return
		}
	}
}

// do submits one request and waits for the loop to apply it.
func (s *Store) do(req request) error {
	req.result = make(chan error, 1)
	select {
	case s.inbox <- req:
	case <-s.quit:
		return errors.Internal("session store is stopped")
	}
	select {
	case err := <-req.result:
		return err
	case <-s.quit:
		return errors.Internal("session store is stopped")
	}
}

// ask is do for requests that carry a response value.
func (s *Store) ask(req request) (interface{}, error) {
	req.response = make(chan interface{}, 1)
	if err := s.do(req); err != nil {
		return nil, err
	}
	select {
	case v := <-req.response:
		return v, nil
	case <-s.quit:
		return nil, errors.Internal("session store is stopped")
	}
}

func (s *Store) handle(req request) error {
	switch req.op {
	case opConnectPrepare:
		req.response <- s.handleConnectPrepare(req.payload.(string))
		return nil
	case opConnectAbort:
		return s.handleConnectAbort(req.payload.(string))
	case opDisconnectMark:
		s.adapterActive = false
		s.pending = nil
		s.applyState(StateDisconnected)
		return nil
	case opAdapterConnected:
		return s.handleAdapterConnected(req.payload.(string))
	case opAdapterDisconnected:
		reason, _ := req.payload.(error)
		return s.handleAdapterDisconnected(reason)
	case opAdapterError:
		if err, ok := req.payload.(error); ok && s.adapterActive {
			s.setError(err.Error())
		}
		return nil
	case opAdapterStatus:
		if s.adapterActive {
			s.applyState(stateOf(req.payload.(transport.Status)))
		}
		return nil
	case opIngest:
		return s.ingest(req.payload.([]byte))
	case opGate:
		return s.handleGate(req.payload.(gatePayload))
	case opSubscribe:
		req.response <- s.handleSubscribe(req.payload.(int))
		return nil
	case opUnsubscribe:
		id := req.payload.(int)
		if ch, ok := s.subscribers[id]; ok {
			close(ch)
			delete(s.subscribers, id)
		}
		return nil
	case opAttachSink:
		s.sink, _ = req.payload.(EventSink)
		return nil
	case opReset:
		s.reset()
		return nil
	case opSnapshot:
		req.response <- s.snapshot()
		return nil
	case opInspect:
		req.response <- inspection{
			conversationID: s.conversationID,
			state:          s.state,
			flags:          s.flags,
			err:            s.sessionErr,
		}
		return nil
	case opMessages:
		req.response <- append([]message.Message(nil), s.messages...)
		return nil
	case opEvents:
		req.response <- s.eventsNewestFirst(req.payload.(int))
		return nil
	case opFileContent:
		content, ok := s.files[req.payload.(string)]
		req.response <- fileContent{content: content, ok: ok}
		return nil
	case opTerminal:
		req.response <- append([]TerminalEntry(nil), s.terminal...)
		return nil
	default:
		return errors.Internal(fmt.Sprintf("unknown operation %d", req.op))
	}
}

type fileContent struct {
	content string
	ok      bool
}

// ---- connection lifecycle -------------------------------------------------

// Connect binds the store to a conversation and starts the adapter. A new
// conversation id wipes the previous session's log and caches; reconnecting
// to the same conversation keeps them, and connecting to the conversation
// that is already live is a no-op.
func (s *Store) Connect(conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.InvalidInput("conversation id is required")
	}
	proceed, err := s.ask(request{op: opConnectPrepare, payload: conversationID})
	if err != nil {
		return err
	}
	if !proceed.(bool) {
		return nil
	}
	if err := s.adapter.Connect(s.endpoint, conversationID); err != nil {
		s.do(request{op: opConnectAbort, payload: err.Error()})
		return err
	}
	return nil
}

// Disconnect tears the connection down. Calling it without a prior Connect
// is a no-op that leaves the state Disconnected.
func (s *Store) Disconnect() {
	s.do(request{op: opDisconnectMark})
	s.adapter.Disconnect()
}

// handleConnectPrepare binds the conversation and reports whether the caller
// should dial. A conversation that is already live is left alone.
func (s *Store) handleConnectPrepare(conversationID string) bool {
	if s.adapterActive && s.conversationID == conversationID && s.state != StateDisconnected {
		slog.Debug("Connect ignored, conversation already live", "conversation", conversationID)
		return false
	}
	if s.conversationID != "" && s.conversationID != conversationID {
		slog.Info("Switching conversation", "from", s.conversationID, "to", conversationID)
		s.reset()
	}
	s.conversationID = conversationID
	s.adapterActive = true
	s.applyState(StateConnecting)
	return true
}

func (s *Store) handleConnectAbort(detail string) error {
	s.adapterActive = false
	s.setError(detail)
	s.applyState(StateDisconnected)
	return nil
}

func (s *Store) handleAdapterConnected(conversationID string) error {
	if !s.adapterActive {
		return nil
	}
	s.conversationID = conversationID
	s.clearError()
	s.applyState(StateConnected)
	return nil
}

func (s *Store) handleAdapterDisconnected(reason error) error {
	if !s.adapterActive {
		return nil
	}
	if reason != nil {
		detail := "connection lost: " + reason.Error()
		s.setError(detail)
		s.appendMessage(message.NewError(detail))
		s.adapterActive = false
	}
	s.pending = nil
	s.applyState(StateDisconnected)
	return nil
}

// Callbacks returns the adapter notification surface wired into the loop.
// Pass it to the transport client before Connect.
func (s *Store) Callbacks() transport.Callbacks {
	return transport.Callbacks{
		OnConnect: func(conversationID string) {
			s.do(request{op: opAdapterConnected, payload: conversationID})
		},
		OnDisconnect: func(reason error) {
			s.do(request{op: opAdapterDisconnected, payload: reason})
		},
		OnRawEvent: func(payload []byte) {
			s.Ingest(payload)
		},
		OnError: func(err error) {
			s.do(request{op: opAdapterError, payload: err})
		},
		OnStatus: func(status transport.Status) {
			s.do(request{op: opAdapterStatus, payload: status})
		},
	}
}

func stateOf(status transport.Status) ConnState {
	switch status {
	case transport.StatusConnecting:
		return StateConnecting
	case transport.StatusConnected:
		return StateConnected
	case transport.StatusReconnecting:
		return StateReconnecting
	default:
		return StateDisconnected
	}
}

// ---- ingestion ------------------------------------------------------------

// Ingest decodes and applies one raw inbound payload. Undecodable payloads
// are recorded as the session error and dropped; duplicate ids are ignored.
// Blocking here is deliberate: the transport pump must not outrun the log.
func (s *Store) Ingest(raw []byte) error {
	return s.do(request{op: opIngest, payload: raw})
}

func (s *Store) ingest(raw []byte) error {
	evt, err := event.Parse(raw)
	if err != nil {
		slog.Warn("Dropping undecodable payload", "error", err)
		s.setError(err.Error())
		return err
	}
	if s.seen.CheckAndMark(evt.ID) {
		slog.Debug("Ignoring duplicate event", "id", evt.ID)
		return errors.ErrDuplicateEvent
	}

	s.events = append(s.events, evt)
	if evt.ID > s.lastEventID.Load() {
		s.lastEventID.Store(evt.ID)
	}

	s.derive(evt)

	if evt.Observation != event.ObservationError {
		s.clearError()
	}

	if s.sink != nil {
		if err := s.sink.Append(evt, raw); err != nil {
			slog.Warn("Transcript append failed", "event_id", evt.ID, "error", err)
		}
	}

	s.broadcast(Change{Kind: ChangeEvent, Event: evt})
	return nil
}

func (s *Store) derive(evt *event.Event) {
	if evt.Kind() == event.KindAction {
		s.deriveAction(evt)
		return
	}
	s.deriveObservation(evt)
}

func (s *Store) deriveAction(evt *event.Event) {
	switch evt.Action {
	case event.ActionMessage:
		content := evt.MessageContent()
		if content == "" {
			return
		}
		if evt.Source == event.SourceUser && s.consumePendingEcho(content) {
			slog.Debug("Suppressed echoed user message", "id", evt.ID)
			return
		}
		sender := message.SenderAgent
		if evt.Source == event.SourceUser {
			sender = message.SenderUser
		}
		msg := message.New(sender, content)
		msg.Timestamp = evt.Timestamp
		msg.ImageURLs = evt.ImageURLs()
		msg.Thought = evt.Thought()
		s.appendMessage(msg)

	case event.ActionRun:
		if evt.Source == event.SourceAgent && !s.flags.Executing {
			s.flags.Executing = true
			s.broadcast(Change{Kind: ChangeFlags, Flags: s.flags})
		}
	}
}

func (s *Store) deriveObservation(evt *event.Event) {
	switch evt.Observation {
	case event.ObservationAgentStateChanged:
		state, ok := evt.AgentState()
		if !ok {
			return
		}
		next := s.flags
		next.Thinking = state.Thinking()
		next.AwaitingConfirmation = state.AwaitingConfirmation()
		if !state.Active() {
			next.Executing = false
		}
		if next != s.flags {
			s.flags = next
			s.broadcast(Change{Kind: ChangeFlags, Flags: s.flags})
		}

	case event.ObservationRun:
		result, ok := evt.RunResult()
		if !ok {
			return
		}
		s.terminal = append(s.terminal, TerminalEntry{
			Command:   result.Command,
			ExitCode:  result.ExitCode,
			Output:    result.Output,
			Timestamp: evt.Timestamp,
		})
		if s.flags.Executing {
			s.flags.Executing = false
			s.broadcast(Change{Kind: ChangeFlags, Flags: s.flags})
		}

	case event.ObservationRead, event.ObservationWrite, event.ObservationEdit:
		if result, ok := evt.FileResult(); ok {
			s.files[result.Path] = result.Content
		}

	case event.ObservationBrowse:
		result, ok := evt.BrowseResult()
		if !ok {
			return
		}
		key := result.URL
		if key == "" {
			key = strconv.FormatInt(evt.ID, 10)
		}
		s.pages[key] = PageSnapshot{
			URL:       result.URL,
			HTML:      result.HTML,
			DOM:       result.DOM,
			UpdatedAt: evt.Timestamp,
		}

	case event.ObservationError:
		detail := evt.Content
		if detail == "" {
			detail = evt.Message
		}
		if id := evt.ErrorID(); id != "" {
			detail = id + ": " + detail
		}
		s.setError(detail)
		s.appendMessage(message.NewError(detail))
	}
}

// consumePendingEcho reports whether content matches a live pending echo and
// retires it. Expired entries are pruned on the way.
func (s *Store) consumePendingEcho(content string) bool {
	now := s.now()
	live := s.pending[:0]
	matched := false
	for _, p := range s.pending {
		if now.Sub(p.sentAt) > s.echoWindow {
			continue
		}
		if !matched && p.text == content {
			matched = true
			continue
		}
		live = append(live, p)
	}
	s.pending = live
	return matched
}

func (s *Store) appendMessage(msg message.Message) {
	s.messages = append(s.messages, msg)
	s.broadcast(Change{Kind: ChangeMessage, Message: &msg})
}

func (s *Store) applyState(next ConnState) {
	if s.state == next {
		return
	}
	slog.Info("Session state", "from", s.state.String(), "to", next.String())
	s.state = next
	s.broadcast(Change{Kind: ChangeState, State: next})
}

func (s *Store) setError(detail string) {
	s.sessionErr = detail
	s.broadcast(Change{Kind: ChangeError, Err: detail})
}

func (s *Store) clearError() {
	if s.sessionErr == "" {
		return
	}
	s.sessionErr = ""
	s.broadcast(Change{Kind: ChangeError, Err: ""})
}

func (s *Store) reset() {
	s.events = nil
	s.messages = nil
	s.terminal = nil
	s.pending = nil
	s.files = make(map[string]string)
	s.pages = make(map[string]PageSnapshot)
	s.flags = Flags{}
	s.sessionErr = ""
	s.seen.Reset()
	s.lastEventID.Store(0)
}

// ---- subscriptions ----------------------------------------------------------

// Subscribe registers a change listener. A full buffer drops notifications
// rather than blocking the loop; size the buffer for the reader's pace, or
// pass 0 for the configured default. The cancel func is idempotent.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = s.notifyBuf
	}
	v, err := s.ask(request{op: opSubscribe, payload: buffer})
	if err != nil {
		closed := make(chan Change)
		close(closed)
		return closed, func() {}
	}
	sub := v.(subscription)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.do(request{op: opUnsubscribe, payload: sub.id})
		})
	}
	return sub.ch, cancel
}

type subscription struct {
	id int
	ch chan Change
}

func (s *Store) handleSubscribe(buffer int) subscription {
	s.nextSubID++
	ch := make(chan Change, buffer)
	s.subscribers[s.nextSubID] = ch
	return subscription{id: s.nextSubID, ch: ch}
}

func (s *Store) broadcast(change Change) {
	for id, ch := range s.subscribers {
		select {
		case ch <- change:
		default:
			slog.Warn("Dropping change notification", "subscriber", id, "kind", int(change.Kind))
		}
	}
}

// ---- read surface -----------------------------------------------------------

// AttachSink installs the transcript feed. Pass nil to detach.
func (s *Store) AttachSink(sink EventSink) {
	s.do(request{op: opAttachSink, payload: sink})
}

// Reset wipes the log, timeline, caches and flags. The conversation binding
// and connection state survive.
func (s *Store) Reset() {
	s.do(request{op: opReset})
}

// LastEventID returns the highest ingested event id, 0 when nothing was
// ingested. Safe from any goroutine; the reconnect cursor reads it.
func (s *Store) LastEventID() int64 {
	return s.lastEventID.Load()
}

func (s *Store) Snapshot() Snapshot {
	v, err := s.ask(request{op: opSnapshot})
	if err != nil {
		return Snapshot{State: StateDisconnected}
	}
	return v.(Snapshot)
}

func (s *Store) State() ConnState {
	return s.inspect().state
}

func (s *Store) Flags() Flags {
	return s.inspect().flags
}

// Error returns the recorded session error, "" when the session is healthy.
func (s *Store) Error() string {
	return s.inspect().err
}

func (s *Store) ConversationID() string {
	return s.inspect().conversationID
}

func (s *Store) inspect() inspection {
	v, err := s.ask(request{op: opInspect})
	if err != nil {
		return inspection{state: StateDisconnected}
	}
	return v.(inspection)
}

// Messages returns the chat timeline, oldest first.
func (s *Store) Messages() []message.Message {
	v, err := s.ask(request{op: opMessages})
	if err != nil {
		return nil
	}
	return v.([]message.Message)
}

// Events returns ingested events newest first; limit <= 0 returns all.
func (s *Store) Events(limit int) []*event.Event {
	v, err := s.ask(request{op: opEvents, payload: limit})
	if err != nil {
		return nil
	}
	return v.([]*event.Event)
}

// FileContent returns the cached content for path as of the latest
// read/write/edit observation.
func (s *Store) FileContent(path string) (string, bool) {
	v, err := s.ask(request{op: opFileContent, payload: path})
	if err != nil {
		return "", false
	}
	fc := v.(fileContent)
	return fc.content, fc.ok
}

// TerminalHistory returns executed commands in execution order.
func (s *Store) TerminalHistory() []TerminalEntry {
	v, err := s.ask(request{op: opTerminal})
	if err != nil {
		return nil
	}
	return v.([]TerminalEntry)
}

func (s *Store) eventsNewestFirst(limit int) []*event.Event {
	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*event.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.events[i])
	}
	return out
}

func (s *Store) snapshot() Snapshot {
	files := make(map[string]string, len(s.files))
	for k, v := range s.files {
		files[k] = v
	}
	pages := make(map[string]PageSnapshot, len(s.pages))
	for k, v := range s.pages {
		pages[k] = v
	}
	return Snapshot{
		ConversationID: s.conversationID,
		State:          s.state,
		Connected:      s.state == StateConnected,
		Error:          s.sessionErr,
		Flags:          s.flags,
		LastEventID:    s.lastEventID.Load(),
		EventCount:     len(s.events),
		Events:         s.eventsNewestFirst(0),
		Messages:       append([]message.Message(nil), s.messages...),
		Files:          files,
		Terminal:       append([]TerminalEntry(nil), s.terminal...),
		Pages:          pages,
	}
}
