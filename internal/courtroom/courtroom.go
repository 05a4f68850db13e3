package courtroom

import "errors"

var ErrAlreadyStarted = errors.New("session already started")
var ErrNotStarted = errors.New("session not started")
var ErrNotYourTurn = errors.New("not the human turn")
var ErrAwaitingReply = errors.New("submission already awaiting reply")
var ErrCaseClosed = errors.New("case already closed")
var ErrEmptySubmission = errors.New("empty submission")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Speaker string

const (
	SpeakerHuman Speaker = "human"
	SpeakerAI    Speaker = "ai"
	SpeakerJudge Speaker = "judge"
)

func ParseSpeaker(s string) (Speaker, bool) {
	switch s {
	case "human":
		return SpeakerHuman, true
	case "ai":
		return SpeakerAI, true
	case "judge":
		return SpeakerJudge, true
	default:
		return "", false
	}
}

type CaseStatus string

const (
	CaseOpen   CaseStatus = "open"
	CaseClosed CaseStatus = "closed"
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseAwaitingBootstrap Phase = "awaiting_bootstrap"
	PhaseOpen              Phase = "open"
	PhaseAwaitingReply     Phase = "awaiting_reply"
	PhaseClosed            Phase = "closed"
)

// Utterance is one spoken contribution as the server describes it:
// who said it, what was said, optional supporting context, and the
// per-message score shown next to it.
type Utterance struct {
	Speaker Speaker
	Text    string
	Context string
	Score   float64
}

// TurnEvent is one decoded server push. Immutable once decoded; the
// reducer only reads it.
type TurnEvent struct {
	Response     *Utterance // current_response
	LastResponse *Utterance // only on a closing event
	JudgeComment string
	NextTurn     Speaker
	CaseStatus   CaseStatus

	// Running totals as the server reports them. Totals, not deltas:
	// the reducer replaces its own totals with these on every event.
	HumanScore float64
	AIScore    float64

	Winner          string
	ScoreDifference float64
}

// Entry is one transcript line emitted by the reducer. The store assigns
// ID and ReceivedAt on append.
type Entry struct {
	ID        string
	Speaker   Speaker
	Text      string
	Context   string
	Score     float64
	IsComment bool
	IsSummary bool
}

type State struct {
	Phase      Phase
	CaseStatus CaseStatus
	NextTurn   Speaker
	HumanScore float64
	AIScore    float64

	// Set once, by the closing event.
	Winner          string
	ScoreDifference float64
}

func NewState() State {
	return State{Phase: PhaseIdle, CaseStatus: CaseOpen}
}

// InputEnabled reports whether a human submission is currently legal.
// Awaiting-reply is its own phase, so this can never be true while a
// submission is in flight.
func (s State) InputEnabled() bool {
	return s.Phase == PhaseOpen && s.NextTurn == SpeakerHuman
}

func (s State) AwaitingReply() bool {
	return s.Phase == PhaseAwaitingReply
}

type CommandType string

const (
	CmdStart      CommandType = "Start"
	CmdBootstrap  CommandType = "Bootstrap"
	CmdSubmit     CommandType = "Submit"
	CmdServerTurn CommandType = "ServerTurn"
	CmdSendFailed CommandType = "SendFailed"
)

type Command struct {
	Type  CommandType
	Text  string     // CmdSubmit
	Event *TurnEvent // CmdBootstrap, CmdServerTurn
}

type EventType string

const (
	EvtEntryAppended EventType = "EntryAppended"
	EvtEchoRetracted EventType = "EchoRetracted"
	EvtAwaitingReply EventType = "AwaitingReply"
	EvtCaseClosed    EventType = "CaseClosed"
)

type Event struct {
	Type            EventType
	Entry           Entry // EvtEntryAppended
	Winner          string
	ScoreDifference float64
}
