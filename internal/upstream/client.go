package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hai-court/courtroom-gateway/internal/types"
)

var ErrInitialization = errors.New("simulation bootstrap failed")
var ErrMetering = errors.New("insufficient credits")
var ErrTransport = errors.New("upstream transport error")
var ErrNotFound = errors.New("case not found")

// Known service keys of the credit ledger.
const (
	ServiceCourtroomSession = "courtroom_session"
	ServiceCaseResponse     = "case_response"
)

// Client speaks the simulation service's REST surface. The live stream
// side lives in stream.go.
type Client struct {
	baseURL string
	wsURL   string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewClient(baseURL, wsURL string, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.S()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		wsURL:   strings.TrimRight(wsURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// StartSimulation performs the one-shot bootstrap exchange. Exactly one
// request per call; the caller holds the once-per-session latch.
func (c *Client) StartSimulation(ctx context.Context, caseID string) (*types.TurnPayload, error) {
	var payload types.TurnPayload
	err := c.postJSON(ctx, "/api/hai/start-simulation", map[string]string{"case_id": caseID}, &payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitialization, err)
	}
	return &payload, nil
}

type ProcessInputRequest struct {
	TurnType  string `json:"turn_type"`
	InputText string `json:"input_text,omitempty"`
	CaseID    string `json:"case_id"`
}

// ProcessInput is the stateless follow-up endpoint the review surface
// uses; the reply carries the same event shape as a stream push.
func (c *Client) ProcessInput(ctx context.Context, req ProcessInputRequest) (*types.TurnPayload, error) {
	var payload types.TurnPayload
	if err := c.postJSON(ctx, "/api/hai/process-input", req, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return &payload, nil
}

// CaseDetails is the stored conversation for review replay.
type CaseDetails struct {
	CaseStatus      string                   `json:"case_status"`
	Winner          string                   `json:"winner,omitempty"`
	ScoreDifference float64                  `json:"score_difference,omitempty"`
	HumanScore      float64                  `json:"human_score"`
	AIScore         float64                  `json:"ai_score"`
	Conversations   []types.UtterancePayload `json:"conversations"`
}

func (c *Client) CaseDetails(ctx context.Context, caseID string) (*CaseDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/hai/get-case-details/"+caseID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var details CaseDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return &details, nil
}

type useCreditsResponse struct {
	Success          bool   `json:"success"`
	RemainingCredits int    `json:"remaining_credits"`
	Message          string `json:"message,omitempty"`
}

// DeductCredits charges one unit of the named service to the user.
// A declined deduction is ErrMetering; the caller must not proceed.
func (c *Client) DeductCredits(ctx context.Context, userID, service string) error {
	var out useCreditsResponse
	err := c.postJSON(ctx, "/api/use-credits", map[string]string{"user_id": userID, "service": service}, &out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !out.Success {
		if out.Message == "" {
			out.Message = "insufficient credits"
		}
		return fmt.Errorf("%w: %s", ErrMetering, out.Message)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(reason)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreditMeter adapts the credit endpoint to the session's Meter check.
type CreditMeter struct {
	Client  *Client
	Service string
}

func (m CreditMeter) Allow(ctx context.Context, participantID string) error {
	return m.Client.DeductCredits(ctx, participantID, m.Service)
}
