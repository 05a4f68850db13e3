package courtroom

import (
	"errors"
	"math/rand"
	"testing"
)

func openingEvent(next Speaker) *TurnEvent {
	return &TurnEvent{
		Response: &Utterance{
			Speaker: SpeakerJudge,
			Text:    "Please present your opening argument.",
		},
		NextTurn:   next,
		CaseStatus: CaseOpen,
	}
}

func aiReply(next Speaker, comment string) *TurnEvent {
	return &TurnEvent{
		Response: &Utterance{
			Speaker: SpeakerAI,
			Text:    "Objection, hearsay.",
			Context: "Rule 802.",
			Score:   0.4,
		},
		JudgeComment: comment,
		NextTurn:     next,
		CaseStatus:   CaseOpen,
		HumanScore:   0.5,
		AIScore:      0.4,
	}
}

func closingEvent() *TurnEvent {
	return &TurnEvent{
		LastResponse: &Utterance{
			Speaker: SpeakerJudge,
			Text:    "The court rules in favor of the human lawyer.",
		},
		CaseStatus:      CaseClosed,
		HumanScore:      1.5,
		AIScore:         0.25,
		Winner:          "human",
		ScoreDifference: 1.25,
	}
}

// mustApply drives the reducer through a sequence, failing on any error.
func mustApply(t *testing.T, s State, cmds ...Command) State {
	t.Helper()
	for _, cmd := range cmds {
		var err error
		_, s, err = Apply(s, cmd)
		if err != nil {
			t.Fatalf("Apply(%s): %v", cmd.Type, err)
		}
	}
	return s
}

func openState(t *testing.T, next Speaker) State {
	t.Helper()
	return mustApply(t, NewState(),
		Command{Type: CmdStart},
		Command{Type: CmdBootstrap, Event: openingEvent(next)},
	)
}

func TestStartLatch(t *testing.T) {
	s := NewState()
	_, s, err := Apply(s, Command{Type: CmdStart})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Phase != PhaseAwaitingBootstrap {
		t.Fatalf("want awaiting_bootstrap, got %v", s.Phase)
	}

	_, _, err = Apply(s, Command{Type: CmdStart})
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("want ErrAlreadyStarted, got %v", err)
	}
}

func TestBootstrapRequiresStart(t *testing.T) {
	_, _, err := Apply(NewState(), Command{Type: CmdBootstrap, Event: openingEvent(SpeakerHuman)})
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("want ErrNotStarted, got %v", err)
	}
}

func TestBootstrapOpensCase(t *testing.T) {
	s := mustApply(t, NewState(), Command{Type: CmdStart})
	events, s, err := Apply(s, Command{Type: CmdBootstrap, Event: openingEvent(SpeakerHuman)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	entries := AppendedEntries(events)
	if len(entries) != 1 {
		t.Fatalf("want 1 appended entry, got %d", len(entries))
	}
	if entries[0].Speaker != SpeakerJudge {
		t.Fatalf("want judge opening, got %v", entries[0].Speaker)
	}
	if !s.InputEnabled() {
		t.Fatalf("expected input enabled after bootstrap with next_turn=human")
	}
}

func TestSubmitEntersAwaitingReply(t *testing.T) {
	s := openState(t, SpeakerHuman)

	events, s, err := Apply(s, Command{Type: CmdSubmit, Text: "objection"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	entries := AppendedEntries(events)
	if len(entries) != 1 || entries[0].Speaker != SpeakerHuman || entries[0].Text != "objection" {
		t.Fatalf("want one human echo entry, got %+v", entries)
	}
	if !ContainsEvent(events, EvtAwaitingReply) {
		t.Fatalf("expected EvtAwaitingReply")
	}
	if s.InputEnabled() {
		t.Fatalf("input must be disabled while awaiting reply")
	}
	if !s.AwaitingReply() {
		t.Fatalf("expected awaiting_reply phase")
	}
}

func TestSubmitRejections(t *testing.T) {
	awaiting := mustApply(t, openState(t, SpeakerHuman), Command{Type: CmdSubmit, Text: "x"})
	closed := mustApply(t, openState(t, SpeakerHuman), Command{Type: CmdServerTurn, Event: closingEvent()})

	cases := []struct {
		name    string
		setup   State
		text    string
		wantErr error
	}{
		{name: "not started", setup: NewState(), text: "x", wantErr: ErrNotStarted},
		{name: "ai turn", setup: openState(t, SpeakerAI), text: "x", wantErr: ErrNotYourTurn},
		{name: "awaiting reply", setup: awaiting, text: "x", wantErr: ErrAwaitingReply},
		{name: "case closed", setup: closed, text: "x", wantErr: ErrCaseClosed},
		{name: "blank text", setup: openState(t, SpeakerHuman), text: "   ", wantErr: ErrEmptySubmission},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, got, err := Apply(tc.setup, Command{Type: CmdSubmit, Text: tc.text})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if got != tc.setup {
				t.Fatalf("rejected submit must not change state")
			}
		})
	}
}

func TestServerReplyReenablesInput(t *testing.T) {
	s := mustApply(t, openState(t, SpeakerHuman), Command{Type: CmdSubmit, Text: "objection"})

	events, s, err := Apply(s, Command{Type: CmdServerTurn, Event: aiReply(SpeakerHuman, "")})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(AppendedEntries(events)) != 1 {
		t.Fatalf("want 1 appended entry, got %d", len(AppendedEntries(events)))
	}
	if !s.InputEnabled() || s.AwaitingReply() {
		t.Fatalf("want input re-enabled after reply; state %+v", s)
	}
}

func TestJudgeCommentAppendsAfterResponse(t *testing.T) {
	s := openState(t, SpeakerAI)

	events, _, err := Apply(s, Command{Type: CmdServerTurn, Event: aiReply(SpeakerHuman, "The court notes the objection.")})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	entries := AppendedEntries(events)
	if len(entries) != 2 {
		t.Fatalf("want response + comment, got %d entries", len(entries))
	}
	if entries[0].IsComment || entries[0].Speaker != SpeakerAI {
		t.Fatalf("response must come first, got %+v", entries[0])
	}
	if !entries[1].IsComment || entries[1].Speaker != SpeakerJudge {
		t.Fatalf("comment must come second, got %+v", entries[1])
	}
}

// AI and judge turns stream in without a prior human submission.
func TestServerTurnAcceptedWithoutSubmission(t *testing.T) {
	s := openState(t, SpeakerAI)
	_, s, err := Apply(s, Command{Type: CmdServerTurn, Event: aiReply(SpeakerHuman, "")})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.NextTurn != SpeakerHuman {
		t.Fatalf("want next_turn human, got %v", s.NextTurn)
	}
}

func TestClosingEvent(t *testing.T) {
	s := mustApply(t, openState(t, SpeakerHuman), Command{Type: CmdSubmit, Text: "final argument"})

	events, s, err := Apply(s, Command{Type: CmdServerTurn, Event: closingEvent()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	entries := AppendedEntries(events)
	if len(entries) != 1 || !entries[0].IsSummary {
		t.Fatalf("want one summary entry, got %+v", entries)
	}
	if !ContainsEvent(events, EvtCaseClosed) {
		t.Fatalf("expected EvtCaseClosed")
	}
	if s.Phase != PhaseClosed || s.CaseStatus != CaseClosed {
		t.Fatalf("want closed, got %+v", s)
	}
	if s.InputEnabled() {
		t.Fatalf("input must be permanently disabled after close")
	}
	if s.Winner != "human" || s.ScoreDifference != 1.25 {
		t.Fatalf("summary not recorded: %+v", s)
	}
}

func TestClosedIsTerminal(t *testing.T) {
	s := mustApply(t, openState(t, SpeakerHuman), Command{Type: CmdServerTurn, Event: closingEvent()})

	// A late push claiming the case is open again must be rejected.
	_, got, err := Apply(s, Command{Type: CmdServerTurn, Event: openingEvent(SpeakerHuman)})
	if !errors.Is(err, ErrCaseClosed) {
		t.Fatalf("want ErrCaseClosed, got %v", err)
	}
	if got.CaseStatus != CaseClosed {
		t.Fatalf("closed must never reopen")
	}
}

func TestSendFailedRetractsEcho(t *testing.T) {
	before := openState(t, SpeakerHuman)
	s := mustApply(t, before, Command{Type: CmdSubmit, Text: "objection"})

	events, s, err := Apply(s, Command{Type: CmdSendFailed})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !ContainsEvent(events, EvtEchoRetracted) {
		t.Fatalf("expected EvtEchoRetracted")
	}
	if s.InputEnabled() != before.InputEnabled() {
		t.Fatalf("input enablement must be restored to its pre-submit value")
	}
}

func TestScoresReplaceNotAccumulate(t *testing.T) {
	s := openState(t, SpeakerAI)

	first := aiReply(SpeakerAI, "")
	first.HumanScore, first.AIScore = 0.5, 0.3
	s = mustApply(t, s, Command{Type: CmdServerTurn, Event: first})

	second := aiReply(SpeakerHuman, "")
	second.HumanScore, second.AIScore = 0.8, 0.6
	s = mustApply(t, s, Command{Type: CmdServerTurn, Event: second})

	if s.HumanScore != 0.8 || s.AIScore != 0.6 {
		t.Fatalf("totals must be replaced, not summed: got %v/%v", s.HumanScore, s.AIScore)
	}
}

// Random interleavings of submits, server turns and send failures must
// never produce a state where input is enabled while a reply is pending,
// and the transcript append count must match the transition table.
func TestInputEnabledInvariant_RandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 200; run++ {
		s := openState(t, SpeakerHuman)
		appended := 1 // bootstrap entry

		for step := 0; step < 50; step++ {
			var cmd Command
			switch rng.Intn(4) {
			case 0:
				cmd = Command{Type: CmdSubmit, Text: "argument"}
			case 1:
				next := SpeakerHuman
				if rng.Intn(2) == 0 {
					next = SpeakerAI
				}
				cmd = Command{Type: CmdServerTurn, Event: aiReply(next, "")}
			case 2:
				ev := aiReply(SpeakerHuman, "noted")
				cmd = Command{Type: CmdServerTurn, Event: ev}
			case 3:
				cmd = Command{Type: CmdSendFailed}
			}

			events, next, err := Apply(s, cmd)
			if err != nil {
				if next != s {
					t.Fatalf("run %d step %d: error %v mutated state", run, step, err)
				}
				continue
			}
			s = next
			appended += len(AppendedEntries(events))

			if s.InputEnabled() && s.AwaitingReply() {
				t.Fatalf("run %d step %d: input enabled while awaiting reply", run, step)
			}
			if s.InputEnabled() != (s.Phase == PhaseOpen && s.NextTurn == SpeakerHuman) {
				t.Fatalf("run %d step %d: InputEnabled out of sync with phase/turn", run, step)
			}
		}

		if appended < 1 {
			t.Fatalf("run %d: transcript accounting went negative", run)
		}
	}
}
