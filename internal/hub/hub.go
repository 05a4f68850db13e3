package hub

import (
	"context"

	"github.com/hai-court/courtroom-gateway/internal/session"
)

type HubMsg interface{ isHubMsg() }

type AddSession struct {
	ID      string
	Session *session.Session
	Reply   chan bool // false if the id is already taken
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

type RemoveSession struct {
	ID string
}

type ShutdownHub struct{}

func (AddSession) isHubMsg()    {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case AddSession:
				if h.sessions[msg.ID] != nil {
					msg.Reply <- false
					break
				}
				h.sessions[msg.ID] = msg.Session
				msg.Reply <- true

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case RemoveSession:
				if s := h.sessions[msg.ID]; s != nil {
					s.Inbox() <- session.Shutdown{}
					delete(h.sessions, msg.ID)
				}

			case ShutdownHub:
				for _, s := range h.sessions {
					s.Inbox() <- session.Shutdown{}
				}
				clear(h.sessions)
				h.cancel()
			}
		}
	}
}
