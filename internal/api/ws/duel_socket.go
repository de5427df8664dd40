// Package ws bridges websocket connections to the duel hub. The socket
// layer owns connection lifecycle and message decoding; all room state
// lives in the hub.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"codeduel/internal/app/duel"
	"codeduel/internal/app/service"
	"codeduel/internal/common/security"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // generous: submissions carry full source code

	judgeTimeout = 2 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Inbound message names.
const (
	msgCreateDuel       = "create-duel"
	msgCreateTypingDuel = "create-typing-duel"
	msgJoinDuel         = "join-duel"
	msgToggleReady      = "toggle-ready"
	msgStartDuel        = "start-duel"
	msgCodeChange       = "code-change"
	msgSubmitCode       = "submit-code"
	msgTypingProgress   = "typing-progress"
	msgTypingCompletion = "typing-completion"
	msgRestartTyping    = "restart-typing"
	msgReportViolation  = "anti-cheat-violation"
	msgChatMessage      = "chat-message"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type DuelSocket struct {
	hub         *duel.Hub
	submissions *service.SubmissionService
	problems    *service.ProblemService
	userRepo    repository.UserRepository
}

func NewDuelSocket(hub *duel.Hub, submissions *service.SubmissionService, problems *service.ProblemService, userRepo repository.UserRepository) *DuelSocket {
	return &DuelSocket{
		hub:         hub,
		submissions: submissions,
		problems:    problems,
		userRepo:    userRepo,
	}
}

// HandleWS upgrades the connection and runs the read loop. The token comes
// as a query parameter because browser websocket clients cannot set an
// Authorization header.
func (s *DuelSocket) HandleWS(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		http.Error(w, "token query parameter required", http.StatusUnauthorized)
		return
	}
	userID, _, err := security.ParseToken(tokenString)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	user, err := s.userRepo.FindByID(r.Context(), userID)
	if err != nil {
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WARN: websocket upgrade failed for user %s: %v", userID, err)
		return
	}

	client := newClient(conn)
	go client.writePump()

	identity := duel.Identity{UserID: user.ID, Username: user.Username}
	client.send(duel.Event{Type: duel.EventAuthenticated, Payload: map[string]string{
		"user_id":  user.ID,
		"username": user.Username,
	}})

	s.readLoop(client, identity)
}

func (s *DuelSocket) readLoop(c *client, identity duel.Identity) {
	defer func() {
		s.hub.Disconnect(identity.UserID)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARN: websocket read error for user %s: %v", identity.UserID, err)
			}
			return
		}
		s.dispatch(c, identity, msg)
	}
}

func (s *DuelSocket) dispatch(c *client, identity duel.Identity, msg inboundMessage) {
	var err error
	switch msg.Type {
	case msgCreateDuel:
		err = s.handleCreate(c, identity, msg.Payload, "")
	case msgCreateTypingDuel:
		err = s.handleCreate(c, identity, msg.Payload, model.DuelTyping)
	case msgJoinDuel:
		var p struct {
			RoomCode string `json:"room_code"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			_, err = s.hub.Join(p.RoomCode, identity, c)
		}
	case msgToggleReady:
		var p struct {
			RoomCode string `json:"room_code"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			_, err = s.hub.ToggleReady(p.RoomCode, identity.UserID)
		}
	case msgStartDuel:
		var p struct {
			RoomCode string `json:"room_code"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			_, err = s.hub.Start(p.RoomCode, identity.UserID)
		}
	case msgCodeChange:
		var p struct {
			RoomCode string `json:"room_code"`
			Code     string `json:"code"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = s.hub.CodeChange(p.RoomCode, identity.UserID, p.Code)
		}
	case msgSubmitCode:
		err = s.handleSubmit(identity, msg.Payload)
	case msgTypingProgress:
		var p struct {
			RoomCode  string `json:"room_code"`
			TypedText string `json:"typed_text"`
			WordIndex int    `json:"word_index"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = s.hub.TypingProgress(p.RoomCode, identity.UserID, p.TypedText, p.WordIndex)
		}
	case msgTypingCompletion:
		var p struct {
			RoomCode  string `json:"room_code"`
			TypedText string `json:"typed_text"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			_, err = s.hub.TypingCompletion(p.RoomCode, identity.UserID, p.TypedText)
		}
	case msgRestartTyping:
		var p struct {
			RoomCode string `json:"room_code"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = s.hub.RestartTyping(p.RoomCode, identity.UserID)
		}
	case msgReportViolation:
		var p struct {
			RoomCode string              `json:"room_code"`
			Kind     model.ViolationKind `json:"kind"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			if !p.Kind.Valid() {
				c.send(duel.Event{Type: duel.EventError, Payload: "unknown violation kind"})
				return
			}
			_, err = s.hub.ReportViolation(p.RoomCode, identity.UserID, p.Kind)
		}
	case msgChatMessage:
		var p struct {
			RoomCode string `json:"room_code"`
			Message  string `json:"message"`
		}
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = s.hub.Chat(p.RoomCode, identity.UserID, p.Message)
		}
	default:
		c.send(duel.Event{Type: duel.EventError, Payload: "unknown message type: " + msg.Type})
		return
	}

	if err != nil {
		c.send(duel.Event{Type: duel.EventError, Payload: err.Error()})
	}
}

// handleCreate serves both create messages; a non-empty kind overrides
// whatever the payload carries.
func (s *DuelSocket) handleCreate(c *client, identity duel.Identity, payload json.RawMessage, kind model.DuelKind) error {
	var p struct {
		Kind       model.DuelKind          `json:"kind"`
		ProblemID  string                  `json:"problem_id"`
		Difficulty model.ProblemDifficulty `json:"difficulty"`
		TypingText string                  `json:"typing_text"`
		AutoStart  bool                    `json:"auto_start"`
		MaxSize    int                     `json:"max_size"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if kind != "" {
		p.Kind = kind
	}

	opts := duel.CreateOptions{
		Kind:       p.Kind,
		ProblemID:  p.ProblemID,
		TypingText: p.TypingText,
		AutoStart:  p.AutoStart,
		MaxSize:    p.MaxSize,
	}
	if p.Kind == model.DuelCoding && opts.ProblemID == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		problem, err := s.problems.RandomProblem(ctx, p.Difficulty)
		if err != nil {
			return err
		}
		opts.ProblemID = problem.ID
	}

	_, err := s.hub.Create(identity, c, opts)
	return err
}

// handleSubmit judges the code outside the hub goroutine and hands the
// finished verdict to the hub for arbitration.
func (s *DuelSocket) handleSubmit(identity duel.Identity, payload json.RawMessage) error {
	var p struct {
		RoomCode string `json:"room_code"`
		Code     string `json:"code"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}

	snap, err := s.hub.Room(p.RoomCode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), judgeTimeout)
	defer cancel()
	verdict, judgeErr := s.submissions.EvaluateForDuel(ctx, snap.ProblemID, p.Code, p.Language)
	if judgeErr != nil {
		log.Printf("ERROR: judge failure for duel %s user %s: %v", p.RoomCode, identity.UserID, judgeErr)
	}

	_, err = s.hub.SubmitCode(p.RoomCode, identity.UserID, p.Code, verdict)
	return err
}
