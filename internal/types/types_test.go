package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hai-court/courtroom-gateway/internal/courtroom"
)

func TestToTurnEvent_FullPayload(t *testing.T) {
	raw := `{
		"type": "turn_update",
		"data": {
			"current_response": {"speaker": "ai", "input": "objection", "context": "rule 802", "score": 0.4},
			"next_turn": "human",
			"case_status": "open",
			"human_score": 0.5,
			"ai_score": 0.4,
			"judge_comment": "noted"
		}
	}`

	var m UpstreamMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	ev, err := m.Data.ToTurnEvent()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ev.Response == nil || ev.Response.Speaker != courtroom.SpeakerAI || ev.Response.Score != 0.4 {
		t.Fatalf("bad response mapping: %+v", ev.Response)
	}
	if ev.NextTurn != courtroom.SpeakerHuman || ev.CaseStatus != courtroom.CaseOpen {
		t.Fatalf("bad turn mapping: %+v", ev)
	}
	if ev.JudgeComment != "noted" || ev.HumanScore != 0.5 {
		t.Fatalf("bad metadata mapping: %+v", ev)
	}
}

func TestToTurnEvent_ClosingPayload(t *testing.T) {
	p := &TurnPayload{
		CaseStatus:      "closed",
		Winner:          "human",
		ScoreDifference: 1.25,
		LastResponse:    &UtterancePayload{Speaker: "judge", Input: "case closed"},
		HumanScore:      1.5,
		AIScore:         0.25,
	}

	ev, err := p.ToTurnEvent()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ev.CaseStatus != courtroom.CaseClosed || ev.NextTurn != "" {
		t.Fatalf("closing payload needs no next_turn: %+v", ev)
	}
	if ev.LastResponse == nil || ev.LastResponse.Speaker != courtroom.SpeakerJudge {
		t.Fatalf("bad last_response mapping: %+v", ev.LastResponse)
	}
}

func TestToTurnEvent_Malformed(t *testing.T) {
	cases := []struct {
		name    string
		payload *TurnPayload
	}{
		{name: "nil payload", payload: nil},
		{name: "unknown case_status", payload: &TurnPayload{CaseStatus: "paused", NextTurn: "human"}},
		{name: "unknown next_turn", payload: &TurnPayload{CaseStatus: "open", NextTurn: "clerk"}},
		{name: "judge next_turn", payload: &TurnPayload{CaseStatus: "open", NextTurn: "judge"}},
		{name: "open without next_turn", payload: &TurnPayload{CaseStatus: "open"}},
		{
			name: "unknown speaker",
			payload: &TurnPayload{
				CaseStatus:      "open",
				NextTurn:        "human",
				CurrentResponse: &UtterancePayload{Speaker: "bailiff", Input: "silence"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.payload.ToTurnEvent()
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("want ErrMalformedPayload, got %v", err)
			}
		})
	}
}
