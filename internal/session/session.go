package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hai-court/courtroom-gateway/internal/courtroom"
	"github.com/hai-court/courtroom-gateway/internal/transcript"
	"github.com/hai-court/courtroom-gateway/internal/types"
)

type Msg interface{ isSessionMsg() }

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isSessionMsg() {}

type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

// Submit is a human submission. Reply carries the verdict back to the
// one client that asked, since rejection reasons (not your turn, out of
// credits) are for that client alone.
type Submit struct {
	Text  string
	Reply chan error
}

func (Submit) isSessionMsg() {}

// FromUpstream is one decoded push off the simulation stream.
type FromUpstream struct {
	Payload *types.TurnPayload
}

func (FromUpstream) isSessionMsg() {}

// UpstreamNotice surfaces a stream-level error without touching state.
type UpstreamNotice struct{ Message string }

func (UpstreamNotice) isSessionMsg() {}

// UpstreamClosed means the stream died. Conversation state freezes.
type UpstreamClosed struct{ Err error }

func (UpstreamClosed) isSessionMsg() {}

type AttachTransport struct{ Transport Transport }

func (AttachTransport) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type replyTimeout struct{ gen int }

func (replyTimeout) isSessionMsg() {}

type Snapshot struct {
	Version int
	State   courtroom.State
	Entries []transcript.Entry
	Notice  string
}

// View reflects internal state without data races; test and bootstrap use.
type View struct {
	Version    int
	NumClients int
	State      courtroom.State
	Entries    []transcript.Entry
}

// Transport is the upstream send side. Fire-and-forget: replies come
// back later as independent FromUpstream messages.
type Transport interface {
	Send(ctx context.Context, msg types.HumanInput) error
	Close() error
}

// Meter is the external credit check gating a submission.
type Meter interface {
	Allow(ctx context.Context, participantID string) error
}

// Archiver persists the conversation for review replay.
type Archiver interface {
	SaveEntries(ctx context.Context, caseID string, entries []transcript.Entry) error
	CloseCase(ctx context.Context, caseID string, state courtroom.State) error
}

type Config struct {
	SessionID     string
	CaseID        string
	ParticipantID string
	Meter         Meter
	Archiver      Archiver
	ReplyTimeout  time.Duration // 0 disables the watchdog
	// OnClose fires once when the case closes, so the registry can
	// drop the session without waiting for an explicit DELETE.
	OnClose func()
	Logger  *zap.SugaredLogger
}

type Session struct {
	inbox     chan Msg
	cfg       Config
	state     courtroom.State
	store     *transcript.Store
	transport Transport
	version   int
	clients   map[string]chan Snapshot
	echoID    string // id of the in-flight optimistic echo, "" otherwise
	timerGen  int
	ctx       context.Context
	cancel    context.CancelFunc
	log       *zap.SugaredLogger
}

// New builds the session and runs the bootstrap exchange through the
// reducer before the loop starts: the start latch is armed exactly once
// per session, so a second bootstrap of a live session is a reducer
// error, not a second metered charge.
func New(parent context.Context, cfg Config, opening *courtroom.TurnEvent) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.S()
	}

	state := courtroom.NewState()
	_, state, err := courtroom.Apply(state, courtroom.Command{Type: courtroom.CmdStart})
	if err != nil {
		return nil, err
	}
	events, state, err := courtroom.Apply(state, courtroom.Command{Type: courtroom.CmdBootstrap, Event: opening})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:   make(chan Msg, 64),
		cfg:     cfg,
		state:   state,
		store:   transcript.NewStore(),
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
		log:     cfg.Logger.With("session_id", cfg.SessionID, "case_id", cfg.CaseID),
	}
	s.fold(events)

	go s.loop()
	return s, nil
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				s.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- s.snapshot("")

			case Leave:
				delete(s.clients, msg.ClientID)

			case AttachTransport:
				s.transport = msg.Transport

			case Submit:
				msg.Reply <- s.handleSubmit(msg.Text)

			case FromUpstream:
				s.handleUpstream(msg.Payload)

			case UpstreamNotice:
				s.broadcast(s.snapshot(msg.Message))

			case UpstreamClosed:
				if msg.Err != nil {
					s.log.Warnw("upstream stream closed", "err", msg.Err)
				}
				if s.state.CaseStatus != courtroom.CaseClosed {
					// State frozen, no rollback; the user sees the notice.
					s.broadcast(s.snapshot("connection to the court lost"))
				}

			case replyTimeout:
				if msg.gen != s.timerGen || !s.state.AwaitingReply() {
					break // stale fire
				}
				s.log.Warnw("no reply from upstream within window")
				// Hand the turn back: retract the unanswered echo and let
				// the user resubmit instead of waiting on a spinner. A late
				// reply is still accepted once the case is open again.
				retract, newState, err := courtroom.Apply(s.state, courtroom.Command{Type: courtroom.CmdSendFailed})
				if err == nil {
					s.state = newState
					s.fold(retract)
				}
				s.version++
				s.broadcast(s.snapshot("the court is taking unusually long to respond"))

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					State:      s.state,
					Entries:    s.store.All(),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleSubmit(text string) error {
	if s.transport == nil {
		return fmt.Errorf("no upstream stream attached")
	}

	// Dry-run the reducer first so a metering check is never spent on a
	// submission that would be rejected anyway.
	events, newState, err := courtroom.Apply(s.state, courtroom.Command{Type: courtroom.CmdSubmit, Text: text})
	if err != nil {
		return err
	}

	if s.cfg.Meter != nil {
		if err := s.cfg.Meter.Allow(s.ctx, s.cfg.ParticipantID); err != nil {
			return err
		}
	}

	s.state = newState
	if appended := s.fold(events); len(appended) > 0 {
		s.echoID = appended[0].ID
	}

	if err := s.transport.Send(s.ctx, types.HumanInput{Type: "human_input", Content: text}); err != nil {
		// Compensate the optimistic echo: the server never saw it.
		retract, rolledBack, applyErr := courtroom.Apply(s.state, courtroom.Command{Type: courtroom.CmdSendFailed})
		if applyErr == nil {
			s.state = rolledBack
			s.fold(retract)
		}
		s.version++
		s.broadcast(s.snapshot("failed to reach the court"))
		return fmt.Errorf("send human_input: %w", err)
	}

	s.armReplyTimer()
	s.version++
	s.broadcast(s.snapshot(""))
	return nil
}

func (s *Session) handleUpstream(p *types.TurnPayload) {
	ev, err := p.ToTurnEvent()
	if err != nil {
		// Malformed pushes are dropped; they must never corrupt state.
		s.log.Warnw("dropping malformed upstream payload", "err", err)
		return
	}

	events, newState, err := courtroom.Apply(s.state, courtroom.Command{Type: courtroom.CmdServerTurn, Event: ev})
	if err != nil {
		s.log.Warnw("dropping upstream turn", "err", err)
		return
	}

	s.timerGen++ // any reply disarms the watchdog
	s.state = newState
	s.fold(events)
	s.version++
	s.broadcast(s.snapshot(""))

	if s.state.CaseStatus == courtroom.CaseClosed {
		s.archiveClosed()
		if s.transport != nil {
			_ = s.transport.Close()
		}
		if s.cfg.OnClose != nil {
			// Off the loop: the registry may answer by sending Shutdown
			// back into our inbox.
			go s.cfg.OnClose()
		}
	}
}

// fold applies reducer events to the transcript store and the archive,
// returning the entries it appended.
func (s *Session) fold(events []courtroom.Event) []transcript.Entry {
	var appended []transcript.Entry
	for _, event := range events {
		switch event.Type {
		case courtroom.EvtEntryAppended:
			appended = append(appended, s.store.Append(event.Entry))
		case courtroom.EvtEchoRetracted:
			if !s.store.RetractLast(s.echoID) {
				s.log.Warnw("echo retraction missed", "entry_id", s.echoID)
			}
			s.echoID = ""
		}
	}

	if len(appended) > 0 && s.cfg.Archiver != nil {
		if err := s.cfg.Archiver.SaveEntries(s.ctx, s.cfg.CaseID, appended); err != nil {
			s.log.Warnw("archive write failed", "err", err)
		}
	}
	return appended
}

func (s *Session) archiveClosed() {
	if s.cfg.Archiver == nil {
		return
	}
	if err := s.cfg.Archiver.CloseCase(s.ctx, s.cfg.CaseID, s.state); err != nil {
		s.log.Warnw("archive close failed", "err", err)
	}
}

func (s *Session) armReplyTimer() {
	if s.cfg.ReplyTimeout <= 0 {
		return
	}
	s.timerGen++
	gen := s.timerGen
	go func() {
		select {
		case <-s.ctx.Done():
		case <-time.After(s.cfg.ReplyTimeout):
			select {
			case s.inbox <- replyTimeout{gen: gen}:
			case <-s.ctx.Done():
			}
		}
	}()
}

func (s *Session) snapshot(notice string) Snapshot {
	return Snapshot{
		Version: s.version,
		State:   s.state,
		Entries: s.store.All(),
		Notice:  notice,
	}
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) shutdown() {
	if s.transport != nil {
		_ = s.transport.Close()
	}
	for id, ch := range s.clients {
		close(ch) // Tell client no more snapshots
		delete(s.clients, id)
	}
	s.cancel()
}
