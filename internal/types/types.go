package types

import (
	"errors"
	"fmt"

	"github.com/hai-court/courtroom-gateway/internal/courtroom"
	"github.com/hai-court/courtroom-gateway/internal/transcript"
)

var ErrMalformedPayload = errors.New("malformed payload")

// Upstream envelope, one per server push.
type UpstreamMessage struct {
	Type    string       `json:"type"` // "state_update" | "turn_update" | "error"
	Data    *TurnPayload `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
}

const (
	UpstreamStateUpdate = "state_update"
	UpstreamTurnUpdate  = "turn_update"
	UpstreamError       = "error"
)

// UtterancePayload mirrors the server's LawyerContext shape.
type UtterancePayload struct {
	Speaker string  `json:"speaker"`
	Input   string  `json:"input"`
	Context string  `json:"context,omitempty"`
	Score   float64 `json:"score"`
}

// TurnPayload mirrors the server's TurnResponse shape, both on the
// stream and from the REST endpoints.
type TurnPayload struct {
	NextTurn        string            `json:"next_turn"`
	CaseStatus      string            `json:"case_status"`
	Winner          string            `json:"winner,omitempty"`
	ScoreDifference float64           `json:"score_difference,omitempty"`
	CurrentResponse *UtterancePayload `json:"current_response,omitempty"`
	HumanScore      float64           `json:"human_score"`
	AIScore         float64           `json:"ai_score"`
	JudgeComment    string            `json:"judge_comment,omitempty"`
	LastResponse    *UtterancePayload `json:"last_response,omitempty"`
}

// Outbound to the upstream stream.
type HumanInput struct {
	Type    string `json:"type"` // always "human_input"
	Content string `json:"content"`
}

// Client -> gateway, same contract the upstream speaks.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Gateway -> client.
type ServerMessage struct {
	Type    string      `json:"type"` // "StateSnapshot" | "Error"
	Version int         `json:"version,omitempty"`
	State   *StateView  `json:"state,omitempty"`
	Entries []EntryView `json:"entries,omitempty"`
	Notice  string      `json:"notice,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type StateView struct {
	Phase           string  `json:"phase"`
	CaseStatus      string  `json:"case_status"`
	NextTurn        string  `json:"next_turn,omitempty"`
	HumanScore      float64 `json:"human_score"`
	AIScore         float64 `json:"ai_score"`
	InputEnabled    bool    `json:"input_enabled"`
	AwaitingReply   bool    `json:"awaiting_reply"`
	Winner          string  `json:"winner,omitempty"`
	ScoreDifference float64 `json:"score_difference,omitempty"`
}

type EntryView struct {
	ID        string  `json:"id"`
	Speaker   string  `json:"speaker"`
	Input     string  `json:"input"`
	Context   string  `json:"context,omitempty"`
	Score     float64 `json:"score"`
	IsComment bool    `json:"is_comment,omitempty"`
	IsSummary bool    `json:"is_summary,omitempty"`
}

// ToTurnEvent validates a decoded payload into the reducer's event type.
// Unknown speakers or statuses make the whole payload malformed; the
// caller drops it with a diagnostic rather than feeding the reducer.
func (p *TurnPayload) ToTurnEvent() (*courtroom.TurnEvent, error) {
	if p == nil {
		return nil, ErrMalformedPayload
	}

	ev := &courtroom.TurnEvent{
		HumanScore:      p.HumanScore,
		AIScore:         p.AIScore,
		JudgeComment:    p.JudgeComment,
		Winner:          p.Winner,
		ScoreDifference: p.ScoreDifference,
	}

	switch p.CaseStatus {
	case "open":
		ev.CaseStatus = courtroom.CaseOpen
	case "closed":
		ev.CaseStatus = courtroom.CaseClosed
	default:
		return nil, fmt.Errorf("%w: case_status %q", ErrMalformedPayload, p.CaseStatus)
	}

	if p.NextTurn != "" {
		next, ok := courtroom.ParseSpeaker(p.NextTurn)
		if !ok || next == courtroom.SpeakerJudge {
			return nil, fmt.Errorf("%w: next_turn %q", ErrMalformedPayload, p.NextTurn)
		}
		ev.NextTurn = next
	}
	if ev.CaseStatus == courtroom.CaseOpen && ev.NextTurn == "" {
		return nil, fmt.Errorf("%w: open case without next_turn", ErrMalformedPayload)
	}

	var err error
	if ev.Response, err = p.CurrentResponse.toUtterance(); err != nil {
		return nil, err
	}
	if ev.LastResponse, err = p.LastResponse.toUtterance(); err != nil {
		return nil, err
	}
	return ev, nil
}

func (u *UtterancePayload) toUtterance() (*courtroom.Utterance, error) {
	if u == nil {
		return nil, nil
	}
	speaker, ok := courtroom.ParseSpeaker(u.Speaker)
	if !ok {
		return nil, fmt.Errorf("%w: speaker %q", ErrMalformedPayload, u.Speaker)
	}
	return &courtroom.Utterance{
		Speaker: speaker,
		Text:    u.Input,
		Context: u.Context,
		Score:   u.Score,
	}, nil
}

func ViewOfState(s courtroom.State) *StateView {
	return &StateView{
		Phase:           string(s.Phase),
		CaseStatus:      string(s.CaseStatus),
		NextTurn:        string(s.NextTurn),
		HumanScore:      s.HumanScore,
		AIScore:         s.AIScore,
		InputEnabled:    s.InputEnabled(),
		AwaitingReply:   s.AwaitingReply(),
		Winner:          s.Winner,
		ScoreDifference: s.ScoreDifference,
	}
}

func ViewOfEntries(entries []transcript.Entry) []EntryView {
	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, EntryView{
			ID:        e.ID,
			Speaker:   string(e.Speaker),
			Input:     e.Text,
			Context:   e.Context,
			Score:     e.Score,
			IsComment: e.IsComment,
			IsSummary: e.IsSummary,
		})
	}
	return views
}
