package courtroom

import "strings"

/*
	CmdStart      -> (no events, arms the one-shot bootstrap latch)
	CmdBootstrap  -> EvtEntryAppended per utterance in the opening event
	CmdSubmit     -> EvtEntryAppended (optimistic echo) -> EvtAwaitingReply
	CmdServerTurn -> EvtEntryAppended... -> EvtCaseClosed when the event closes the case
	CmdSendFailed -> EvtEchoRetracted
*/

// Apply is the turn state reducer: pure, no I/O, no clock. The caller
// folds the returned events into the transcript and performs the actual
// network send after a successful CmdSubmit.
func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s

	switch cmd.Type {
	case CmdStart:
		// One-shot latch: a second Start on a live session would mean a
		// second metered bootstrap charge upstream.
		if s.Phase != PhaseIdle {
			return nil, s, ErrAlreadyStarted
		}
		newState.Phase = PhaseAwaitingBootstrap
		return nil, newState, nil

	case CmdBootstrap:
		if s.Phase != PhaseAwaitingBootstrap {
			if s.Phase == PhaseIdle {
				return nil, s, ErrNotStarted
			}
			return nil, s, ErrAlreadyStarted
		}
		return applyTurn(newState, cmd.Event)

	case CmdSubmit:
		switch s.Phase {
		case PhaseIdle, PhaseAwaitingBootstrap:
			return nil, s, ErrNotStarted
		case PhaseClosed:
			return nil, s, ErrCaseClosed
		case PhaseAwaitingReply:
			return nil, s, ErrAwaitingReply
		}
		if s.NextTurn != SpeakerHuman {
			return nil, s, ErrNotYourTurn
		}
		text := strings.TrimSpace(cmd.Text)
		if text == "" {
			return nil, s, ErrEmptySubmission
		}

		newState.Phase = PhaseAwaitingReply
		events := []Event{
			{Type: EvtEntryAppended, Entry: Entry{Speaker: SpeakerHuman, Text: text}},
			{Type: EvtAwaitingReply},
		}
		return events, newState, nil

	case CmdServerTurn:
		switch s.Phase {
		case PhaseIdle, PhaseAwaitingBootstrap:
			return nil, s, ErrNotStarted
		case PhaseClosed:
			// Closed is terminal and monotonic; late pushes are dropped.
			return nil, s, ErrCaseClosed
		}
		return applyTurn(newState, cmd.Event)

	case CmdSendFailed:
		if s.Phase != PhaseAwaitingReply {
			return nil, s, ErrUnsupportedCommand
		}
		// Compensating action for the optimistic echo: the submission
		// never reached the server, so the turn comes back to the human.
		newState.Phase = PhaseOpen
		newState.NextTurn = SpeakerHuman
		return []Event{{Type: EvtEchoRetracted}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// applyTurn folds one server push into the state. Append order within a
// single payload: last_response, then current_response, then the judge
// comment, matching the order the messages are shown.
func applyTurn(s State, ev *TurnEvent) ([]Event, State, error) {
	if ev == nil {
		return nil, s, ErrUnsupportedCommand
	}

	var events []Event
	if ev.CaseStatus == CaseClosed && ev.LastResponse != nil {
		events = append(events, Event{Type: EvtEntryAppended, Entry: Entry{
			Speaker:   ev.LastResponse.Speaker,
			Text:      ev.LastResponse.Text,
			Context:   ev.LastResponse.Context,
			Score:     ev.LastResponse.Score,
			IsSummary: true,
		}})
	}
	if ev.Response != nil {
		events = append(events, Event{Type: EvtEntryAppended, Entry: Entry{
			Speaker: ev.Response.Speaker,
			Text:    ev.Response.Text,
			Context: ev.Response.Context,
			Score:   ev.Response.Score,
		}})
	}
	if ev.JudgeComment != "" {
		events = append(events, Event{Type: EvtEntryAppended, Entry: Entry{
			Speaker:   SpeakerJudge,
			Text:      ev.JudgeComment,
			IsComment: true,
		}})
	}

	// Replace, never accumulate: the server sends running totals.
	s.HumanScore = ev.HumanScore
	s.AIScore = ev.AIScore

	if ev.CaseStatus == CaseClosed {
		s.Phase = PhaseClosed
		s.CaseStatus = CaseClosed
		s.NextTurn = ""
		s.Winner = ev.Winner
		s.ScoreDifference = ev.ScoreDifference
		events = append(events, Event{
			Type:            EvtCaseClosed,
			Winner:          ev.Winner,
			ScoreDifference: ev.ScoreDifference,
		})
		return events, s, nil
	}

	s.Phase = PhaseOpen
	s.CaseStatus = CaseOpen
	s.NextTurn = ev.NextTurn
	return events, s, nil
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// AppendedEntries filters the transcript appends out of a reducer result.
func AppendedEntries(events []Event) []Entry {
	var entries []Entry
	for _, event := range events {
		if event.Type == EvtEntryAppended {
			entries = append(entries, event.Entry)
		}
	}
	return entries
}
