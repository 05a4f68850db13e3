package transcript

import (
	"testing"
	"time"

	"github.com/hai-court/courtroom-gateway/internal/courtroom"
)

func TestAppendStampsIdentity(t *testing.T) {
	s := NewStore()

	stored := s.Append(courtroom.Entry{Speaker: courtroom.SpeakerJudge, Text: "order"})
	if stored.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if stored.ReceivedAt.IsZero() {
		t.Fatalf("expected a receipt time")
	}

	other := s.Append(courtroom.Entry{Speaker: courtroom.SpeakerHuman, Text: "objection"})
	if other.ID == stored.ID {
		t.Fatalf("ids must be unique")
	}
	if s.Len() != 2 {
		t.Fatalf("want 2 entries, got %d", s.Len())
	}
}

func TestAppendPreservesReceiptOrder(t *testing.T) {
	s := NewStore()
	s.now = func() time.Time { return time.Unix(0, 0) } // identical stamps must not matter

	s.Append(courtroom.Entry{Speaker: courtroom.SpeakerAI, Text: "first"})
	s.Append(courtroom.Entry{Speaker: courtroom.SpeakerJudge, Text: "second", IsComment: true})

	all := s.All()
	if all[0].Text != "first" || all[1].Text != "second" {
		t.Fatalf("order must be receipt order, got %+v", all)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Append(courtroom.Entry{Speaker: courtroom.SpeakerHuman, Text: "mine"})

	all := s.All()
	all[0].Text = "tampered"
	if s.All()[0].Text != "mine" {
		t.Fatalf("consumers must not be able to mutate the log")
	}
}

func TestRetractLast(t *testing.T) {
	s := NewStore()
	kept := s.Append(courtroom.Entry{Speaker: courtroom.SpeakerJudge, Text: "opening"})
	echo := s.Append(courtroom.Entry{Speaker: courtroom.SpeakerHuman, Text: "unsent"})

	if s.RetractLast(kept.ID) {
		t.Fatalf("must only retract the newest entry")
	}
	if !s.RetractLast(echo.ID) {
		t.Fatalf("expected retraction of the echo")
	}
	if s.Len() != 1 || s.All()[0].ID != kept.ID {
		t.Fatalf("exactly the one echo must be removed, got %+v", s.All())
	}

	if s.RetractLast(echo.ID) {
		t.Fatalf("double retraction must fail")
	}
}

func TestRetractOnEmptyStore(t *testing.T) {
	s := NewStore()
	if s.RetractLast("anything") {
		t.Fatalf("retract on empty store must fail")
	}
}
