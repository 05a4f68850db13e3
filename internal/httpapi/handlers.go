package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hai-court/courtroom-gateway/internal/archive"
	"github.com/hai-court/courtroom-gateway/internal/hub"
	"github.com/hai-court/courtroom-gateway/internal/session"
	"github.com/hai-court/courtroom-gateway/internal/types"
	"github.com/hai-court/courtroom-gateway/internal/upstream"
)

// ConversationSource is the archive's read side, split out so handler
// tests can fake it.
type ConversationSource interface {
	Conversation(ctx context.Context, caseID string) (*archive.CaseRecord, []archive.EntryRecord, error)
}

// API carries the collaborators the handlers need. Ctx outlives any one
// request: sessions created here keep running after the bootstrap
// request returns.
type API struct {
	Ctx      context.Context
	Hub      *hub.Hub
	Upstream *upstream.Client
	// Meter charges the one-off session fee at bootstrap; TurnMeter
	// charges each human submission. They bill different ledger keys.
	Meter         session.Meter
	TurnMeter     session.Meter
	Archiver      session.Archiver
	Conversations ConversationSource
	ReplyTimeout  time.Duration
	Log           *zap.SugaredLogger
}

func (a *API) logger() *zap.SugaredLogger {
	if a.Log != nil {
		return a.Log
	}
	return zap.S()
}

type startSimulationRequest struct {
	CaseID        string `json:"case_id"`
	ParticipantID string `json:"participant_id"`
}

type startSimulationResponse struct {
	SessionID string            `json:"session_id"`
	State     *types.StateView  `json:"state"`
	Entries   []types.EntryView `json:"entries"`
}

// StartSimulation is the session bootstrap: one metered upstream call,
// one new session actor, one live stream. The reducer's start latch
// guards the session against re-bootstrap after this returns.
func (a *API) StartSimulation(w http.ResponseWriter, r *http.Request) {
	var req startSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "bad request body")
		return
	}
	if req.CaseID == "" || req.ParticipantID == "" {
		jsonError(w, http.StatusBadRequest, "case_id and participant_id are required")
		return
	}

	if a.Meter != nil {
		if err := a.Meter.Allow(r.Context(), req.ParticipantID); err != nil {
			if errors.Is(err, upstream.ErrMetering) {
				jsonError(w, http.StatusPaymentRequired, err.Error())
				return
			}
			a.logger().Warnw("credit check failed", "err", err)
			jsonError(w, http.StatusBadGateway, "credit service unavailable")
			return
		}
	}

	payload, err := a.Upstream.StartSimulation(r.Context(), req.CaseID)
	if err != nil {
		a.logger().Warnw("bootstrap failed", "case_id", req.CaseID, "err", err)
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}
	opening, err := payload.ToTurnEvent()
	if err != nil {
		a.logger().Warnw("bootstrap returned malformed payload", "case_id", req.CaseID, "err", err)
		jsonError(w, http.StatusBadGateway, "malformed bootstrap payload")
		return
	}

	sessionID := uuid.NewString()
	sess, err := session.New(a.Ctx, session.Config{
		SessionID:     sessionID,
		CaseID:        req.CaseID,
		ParticipantID: req.ParticipantID,
		Meter:         a.TurnMeter,
		Archiver:      a.Archiver,
		ReplyTimeout:  a.ReplyTimeout,
		OnClose: func() {
			a.Hub.Inbox() <- hub.RemoveSession{ID: sessionID}
		},
		Logger: a.Log,
	}, opening)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	stream, err := a.Upstream.DialStream(a.Ctx, req.CaseID, req.ParticipantID, sess.Inbox())
	if err != nil {
		sess.Inbox() <- session.Shutdown{}
		a.logger().Warnw("stream dial failed", "case_id", req.CaseID, "err", err)
		jsonError(w, http.StatusBadGateway, "failed to open simulation stream")
		return
	}
	sess.Inbox() <- session.AttachTransport{Transport: stream}

	reply := make(chan bool, 1)
	a.Hub.Inbox() <- hub.AddSession{ID: sessionID, Session: sess, Reply: reply}
	if !<-reply {
		sess.Inbox() <- session.Shutdown{}
		jsonError(w, http.StatusInternalServerError, "session id collision")
		return
	}

	view := make(chan session.View, 1)
	sess.Inbox() <- session.GetState{Reply: view}
	v := <-view

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(startSimulationResponse{
		SessionID: sessionID,
		State:     types.ViewOfState(v.State),
		Entries:   types.ViewOfEntries(v.Entries),
	})
}

// ProcessInput is the stateless review follow-up: no session, no stream,
// the upstream replies synchronously with the usual event shape.
func (a *API) ProcessInput(w http.ResponseWriter, r *http.Request) {
	var req upstream.ProcessInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "bad request body")
		return
	}
	if req.CaseID == "" {
		jsonError(w, http.StatusBadRequest, "case_id is required")
		return
	}
	if _, ok := courtroomTurnType(req.TurnType); !ok {
		jsonError(w, http.StatusBadRequest, "unknown turn_type")
		return
	}

	payload, err := a.Upstream.ProcessInput(r.Context(), req)
	if err != nil {
		a.logger().Warnw("process-input failed", "case_id", req.CaseID, "err", err)
		jsonError(w, http.StatusBadGateway, "simulation service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

type caseDetailsResponse struct {
	CaseStatus      string            `json:"case_status"`
	Winner          string            `json:"winner,omitempty"`
	ScoreDifference float64           `json:"score_difference,omitempty"`
	HumanScore      float64           `json:"human_score"`
	AIScore         float64           `json:"ai_score"`
	Conversations   []types.EntryView `json:"conversations"`
}

// CaseDetails serves review replay from the archive, falling back to the
// upstream's stored copy for cases this gateway never hosted.
func (a *API) CaseDetails(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "case_id")

	if a.Conversations != nil {
		record, entries, err := a.Conversations.Conversation(r.Context(), caseID)
		if err == nil {
			views := make([]types.EntryView, 0, len(entries))
			for _, e := range entries {
				views = append(views, types.EntryView{
					ID:        e.ID,
					Speaker:   e.Speaker,
					Input:     e.Input,
					Context:   e.Context,
					Score:     e.Score,
					IsComment: e.IsComment,
					IsSummary: e.IsSummary,
				})
			}
			writeJSON(w, http.StatusOK, caseDetailsResponse{
				CaseStatus:      record.Status,
				Winner:          record.Winner,
				ScoreDifference: record.ScoreDifference,
				HumanScore:      record.HumanScore,
				AIScore:         record.AIScore,
				Conversations:   views,
			})
			return
		}
		if !errors.Is(err, archive.ErrCaseNotFound) {
			a.logger().Warnw("archive read failed", "case_id", caseID, "err", err)
		}
	}

	details, err := a.Upstream.CaseDetails(r.Context(), caseID)
	if errors.Is(err, upstream.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "case not found")
		return
	}
	if err != nil {
		a.logger().Warnw("case details fetch failed", "case_id", caseID, "err", err)
		jsonError(w, http.StatusBadGateway, "simulation service unavailable")
		return
	}

	views := make([]types.EntryView, 0, len(details.Conversations))
	for _, u := range details.Conversations {
		views = append(views, types.EntryView{
			Speaker: u.Speaker,
			Input:   u.Input,
			Context: u.Context,
			Score:   u.Score,
		})
	}
	writeJSON(w, http.StatusOK, caseDetailsResponse{
		CaseStatus:      details.CaseStatus,
		Winner:          details.Winner,
		ScoreDifference: details.ScoreDifference,
		HumanScore:      details.HumanScore,
		AIScore:         details.AIScore,
		Conversations:   views,
	})
}

// EndSession tears down a live session; server-side case state is the
// upstream's to keep.
func (a *API) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	a.Hub.Inbox() <- hub.RemoveSession{ID: id}
	w.WriteHeader(http.StatusNoContent)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func courtroomTurnType(s string) (string, bool) {
	switch s {
	case "human", "ai", "judge":
		return s, true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
