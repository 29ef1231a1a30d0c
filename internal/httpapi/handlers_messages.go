package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxClientFrame = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type sendRequest struct {
	Text string `json:"text"`
}

type countResponse struct {
	Count int `json:"count"`
}

// streamFrame is one push on the chat stream: the whole log of the group.
type streamFrame struct {
	GroupID  string           `json:"groupId"`
	Messages []models.Message `json:"messages"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Messages.List(r.Context(), caller(r), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := s.deps.Messages.Send(r.Context(), caller(r), chi.URLParam(r, "groupID"), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Messages.MarkRead(r.Context(), caller(r), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Messages.UnreadCount(r.Context(), caller(r), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// handleMessageStream upgrades to a websocket and pushes the chat log of the
// group on connect and after every change. Closing the socket unsubscribes.
func (s *Server) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	uid, groupID := caller(r), chi.URLParam(r, "groupID")

	// Membership is checked before the upgrade so outsiders get a plain 403.
	if _, err := s.deps.Groups.GetGroup(r.Context(), uid, groupID); err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}
	defer conn.Close()

	// Only the newest log matters; a slow client skips intermediate ones.
	updates := make(chan []models.Message, 1)
	unsubscribe, err := s.deps.Messages.Subscribe(r.Context(), uid, groupID, func(msgs []models.Message) {
		select {
		case <-updates:
		default:
		}
		updates <- msgs
	})
	if err != nil {
		logger.Log.Warn().Err(err).Str("group_id", groupID).Msg("Chat stream subscribe failed")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxClientFrame)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case msgs := <-updates:
			if msgs == nil {
				msgs = []models.Message{}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(streamFrame{GroupID: groupID, Messages: msgs}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
