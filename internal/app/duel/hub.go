// Package duel owns the in-memory registry of live duel rooms. All room
// state is mutated by a single hub goroutine that consumes commands from a
// channel, so no per-room locking exists and the process is the sole owner
// of every active room (multi-instance scaling is an explicit non-goal).
package duel

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"codeduel/internal/app/service"
	"codeduel/internal/common/clock"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound   = errors.New("duel room not found")
	ErrRoomFull       = errors.New("duel room is full")
	ErrNotParticipant = errors.New("user is not in this room")
	ErrInvalidState   = errors.New("operation not valid in current room state")
	ErrNotHost        = errors.New("only the host can do this")
	ErrDisqualified   = errors.New("participant is disqualified")
	ErrHubStopped     = errors.New("duel hub is stopped")
)

const (
	winXP  = 100
	drawXP = 40
	lossXP = 15
)

type Config struct {
	MaxParticipants int
	AutoStartDelay  time.Duration
}

type Identity struct {
	UserID   string
	Username string
}

type CreateOptions struct {
	Kind       model.DuelKind
	ProblemID  string
	TypingText string
	AutoStart  bool
	MaxSize    int
}

type Hub struct {
	commands chan func()
	stopped  chan struct{}

	rooms  map[string]*Room
	byUser map[string]string // userID -> room code

	duelRepo  repository.DuelRepository
	antiCheat *service.AntiCheatService
	clk       clock.Clock
	cfg       Config
}

func NewHub(duelRepo repository.DuelRepository, antiCheat *service.AntiCheatService, clk clock.Clock, cfg Config) *Hub {
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = 2
	}
	return &Hub{
		commands:  make(chan func(), 64),
		stopped:   make(chan struct{}),
		rooms:     make(map[string]*Room),
		byUser:    make(map[string]string),
		duelRepo:  duelRepo,
		antiCheat: antiCheat,
		clk:       clk,
		cfg:       cfg,
	}
}

// Run processes commands until the context is cancelled. Every mutation of
// room state happens on this goroutine.
func (h *Hub) Run(ctx context.Context) {
	log.Println("Duel hub started.")
	for {
		select {
		case <-ctx.Done():
			close(h.stopped)
			log.Println("Duel hub stopping...")
			return
		case cmd := <-h.commands:
			cmd()
		}
	}
}

// do runs fn on the hub goroutine and waits for it to complete.
func (h *Hub) do(fn func()) error {
	done := make(chan struct{})
	select {
	case <-h.stopped:
		return ErrHubStopped
	case h.commands <- func() {
		fn()
		close(done)
	}:
	}
	select {
	case <-h.stopped:
		return ErrHubStopped
	case <-done:
		return nil
	}
}

func (h *Hub) run1(fn func() (RoomSnapshot, error)) (RoomSnapshot, error) {
	var snap RoomSnapshot
	var opErr error
	if err := h.do(func() { snap, opErr = fn() }); err != nil {
		return RoomSnapshot{}, err
	}
	return snap, opErr
}

// Create allocates a fresh room with a unique code and enrolls the creator
// as sole participant and host.
func (h *Hub) Create(user Identity, conn Conn, opts CreateOptions) (RoomSnapshot, error) {
	return h.run1(func() (RoomSnapshot, error) {
		maxSize := opts.MaxSize
		if maxSize <= 0 || maxSize > h.cfg.MaxParticipants {
			maxSize = h.cfg.MaxParticipants
		}
		room := &Room{
			Code:       h.newRoomCode(),
			Kind:       opts.Kind,
			Status:     model.DuelWaiting,
			HostID:     user.UserID,
			AutoStart:  opts.AutoStart,
			MaxSize:    maxSize,
			ProblemID:  opts.ProblemID,
			TypingText: opts.TypingText,
		}
		room.Participants = append(room.Participants, &Participant{
			UserID:   user.UserID,
			Username: user.Username,
			Conn:     conn,
		})
		h.rooms[room.Code] = room
		h.byUser[user.UserID] = room.Code

		snap := room.snapshot()
		room.broadcast(Event{Type: EventDuelCreated, Payload: snap})
		return snap, nil
	})
}

// Join admits a user into a waiting room. A user who already holds a seat is
// re-admitted by refreshing their connection handle, which is how
// reconnection works.
func (h *Hub) Join(roomCode string, user Identity, conn Conn) (RoomSnapshot, error) {
	return h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		if p := room.participant(user.UserID); p != nil {
			p.Conn = conn
			snap := room.snapshot()
			room.broadcast(Event{Type: EventParticipantJoined, Payload: snap})
			return snap, nil
		}
		if room.Status != model.DuelWaiting {
			return RoomSnapshot{}, ErrInvalidState
		}
		if len(room.Participants) >= room.MaxSize {
			return RoomSnapshot{}, ErrRoomFull
		}
		room.Participants = append(room.Participants, &Participant{
			UserID:   user.UserID,
			Username: user.Username,
			Conn:     conn,
		})
		h.byUser[user.UserID] = room.Code

		snap := room.snapshot()
		room.broadcast(Event{Type: EventParticipantJoined, Payload: snap})
		return snap, nil
	})
}

func (h *Hub) ToggleReady(roomCode, userID string) (RoomSnapshot, error) {
	return h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		if room.Status != model.DuelWaiting {
			return RoomSnapshot{}, ErrInvalidState
		}
		p := room.participant(userID)
		if p == nil {
			return RoomSnapshot{}, ErrNotParticipant
		}
		p.Ready = !p.Ready

		snap := room.snapshot()
		room.broadcast(Event{Type: EventUserReadyChanged, Payload: snap})

		if room.AutoStart && len(room.Participants) >= 2 && room.allReady() {
			// Grace delay so clients can render the all-ready state before
			// the duel flips to active.
			code := room.Code
			time.AfterFunc(h.cfg.AutoStartDelay, func() {
				h.do(func() { h.startLocked(code, "") })
			})
		}
		return snap, nil
	})
}

// Start is the host-initiated transition to active.
func (h *Hub) Start(roomCode, userID string) (RoomSnapshot, error) {
	return h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		if room.HostID != userID {
			return RoomSnapshot{}, ErrNotHost
		}
		if err := h.startLocked(roomCode, userID); err != nil {
			return RoomSnapshot{}, err
		}
		return room.snapshot(), nil
	})
}

// startLocked runs on the hub goroutine. Empty userID means auto-start.
func (h *Hub) startLocked(roomCode, userID string) error {
	room, ok := h.rooms[roomCode]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Status != model.DuelWaiting {
		// Auto-start firing after a manual start is a no-op.
		if userID == "" {
			return nil
		}
		return ErrInvalidState
	}
	if len(room.Participants) < 2 || !room.allReady() {
		if userID == "" {
			return nil
		}
		return ErrInvalidState
	}
	room.Status = model.DuelActive
	room.StartedAt = h.clk.Now()
	room.broadcast(Event{Type: EventDuelStarted, Payload: room.snapshot()})
	return nil
}

// CodeChange shares a participant's editor buffer with the room.
func (h *Hub) CodeChange(roomCode, userID, code string) error {
	_, err := h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		p := room.participant(userID)
		if p == nil {
			return RoomSnapshot{}, ErrNotParticipant
		}
		p.Code = code
		room.broadcast(Event{Type: EventCodeChanged, Payload: map[string]string{
			"user_id": userID,
			"code":    code,
		}})
		return RoomSnapshot{}, nil
	})
	return err
}

// SubmitCode records a judged submission and arbitrates the winner. The
// first full pass wins immediately; otherwise, once every active participant
// has submitted at least once, the highest passed-count wins, ties broken by
// earliest submission.
func (h *Hub) SubmitCode(roomCode, userID, code string, verdict model.Verdict) (RoomSnapshot, error) {
	return h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		if room.Status != model.DuelActive || room.Kind != model.DuelCoding {
			return RoomSnapshot{}, ErrInvalidState
		}
		p := room.participant(userID)
		if p == nil {
			return RoomSnapshot{}, ErrNotParticipant
		}
		if p.Disqualified {
			return RoomSnapshot{}, ErrDisqualified
		}

		p.Code = code
		p.Submitted = true
		p.SubmittedAt = h.clk.Now()
		v := verdict
		p.LastVerdict = &v

		room.broadcast(Event{Type: EventSubmissionReceived, Payload: map[string]interface{}{
			"user_id": userID,
			"passed":  verdict.Passed,
			"total":   verdict.Total,
			"status":  verdict.Status,
		}})

		if verdict.Accepted() {
			h.finish(room, userID)
			return room.snapshot(), nil
		}

		active := room.activeParticipants()
		allSubmitted := len(active) > 0
		for _, ap := range active {
			if !ap.Submitted {
				allSubmitted = false
				break
			}
		}
		if allSubmitted {
			h.finish(room, bestSubmitter(active))
		}
		return room.snapshot(), nil
	})
}

func bestSubmitter(participants []*Participant) string {
	var best *Participant
	for _, p := range participants {
		if p.LastVerdict == nil {
			continue
		}
		if best == nil ||
			p.LastVerdict.Passed > best.LastVerdict.Passed ||
			(p.LastVerdict.Passed == best.LastVerdict.Passed && p.SubmittedAt.Before(best.SubmittedAt)) {
			best = p
		}
	}
	if best == nil {
		return ""
	}
	return best.UserID
}

// TypingProgress recomputes accuracy and WPM against the canonical text and
// broadcasts progress. It never ends the duel.
func (h *Hub) TypingProgress(roomCode, userID, typedText string, wordIndex int) error {
	_, err := h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		if room.Status != model.DuelActive || room.Kind != model.DuelTyping {
			return RoomSnapshot{}, ErrInvalidState
		}
		p := room.participant(userID)
		if p == nil {
			return RoomSnapshot{}, ErrNotParticipant
		}

		wpm, accuracy := typingMetrics(room.TypingText, typedText, h.clk.Now().Sub(room.StartedAt))
		p.Typing.WordIndex = wordIndex
		p.Typing.WPM = wpm
		p.Typing.Accuracy = accuracy

		room.broadcast(Event{Type: EventTypingProgress, Payload: map[string]interface{}{
			"user_id":    userID,
			"word_index": wordIndex,
			"wpm":        wpm,
			"accuracy":   accuracy,
		}})
		return RoomSnapshot{}, nil
	})
	return err
}

// TypingCompletion declares the first participant to finish the canonical
// text the winner.
func (h *Hub) TypingCompletion(roomCode, userID, typedText string) (RoomSnapshot, error) {
	return h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		if room.Status != model.DuelActive || room.Kind != model.DuelTyping {
			return RoomSnapshot{}, ErrInvalidState
		}
		p := room.participant(userID)
		if p == nil {
			return RoomSnapshot{}, ErrNotParticipant
		}
		if p.Disqualified {
			return RoomSnapshot{}, ErrDisqualified
		}
		if typedText != room.TypingText {
			return RoomSnapshot{}, ErrInvalidState
		}

		wpm, accuracy := typingMetrics(room.TypingText, typedText, h.clk.Now().Sub(room.StartedAt))
		p.Typing.WPM = wpm
		p.Typing.Accuracy = accuracy
		p.Typing.Completed = true

		h.finish(room, userID)
		return room.snapshot(), nil
	})
}

// RestartTyping resets only the calling participant's progress.
func (h *Hub) RestartTyping(roomCode, userID string) error {
	_, err := h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		if room.Kind != model.DuelTyping {
			return RoomSnapshot{}, ErrInvalidState
		}
		p := room.participant(userID)
		if p == nil {
			return RoomSnapshot{}, ErrNotParticipant
		}
		p.Typing = model.TypingStats{}
		room.broadcast(Event{Type: EventTypingProgress, Payload: map[string]interface{}{
			"user_id":    userID,
			"word_index": 0,
			"wpm":        0.0,
			"accuracy":   0.0,
		}})
		return RoomSnapshot{}, nil
	})
	return err
}

// ReportViolation runs the anti-cheat assessment for a live duel. A serious
// violation disqualifies immediately; the fifth minor violation disqualifies
// with a synthesized reason. When exactly one non-disqualified participant
// remains, they win and the duel finishes; rooms can hold more than two
// participants, in which case play continues until one remains.
func (h *Hub) ReportViolation(roomCode, userID string, kind model.ViolationKind) (RoomSnapshot, error) {
	return h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		p := room.participant(userID)
		if p == nil {
			return RoomSnapshot{}, ErrNotParticipant
		}

		assessment, err := h.antiCheat.Assess(kind, p.minorViolations)
		if err != nil {
			return RoomSnapshot{}, err
		}
		p.minorViolations = assessment.MinorCount

		room.broadcast(Event{Type: EventAntiCheatWarning, Payload: map[string]interface{}{
			"user_id":      userID,
			"kind":         kind,
			"disqualified": assessment.Disqualify,
			"reason":       assessment.Reason,
		}})

		if assessment.Disqualify && !p.Disqualified {
			p.Disqualified = true
			p.DisqualifyReason = assessment.Reason

			if room.Status == model.DuelActive {
				switch active := room.activeParticipants(); len(active) {
				case 1:
					h.finish(room, active[0].UserID)
				case 0:
					h.finish(room, "")
				}
			}
		}
		return room.snapshot(), nil
	})
}

// Chat relays a message to the room.
func (h *Hub) Chat(roomCode, userID, message string) error {
	_, err := h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		p := room.participant(userID)
		if p == nil {
			return RoomSnapshot{}, ErrNotParticipant
		}
		room.broadcast(Event{Type: EventChatMessage, Payload: map[string]interface{}{
			"user_id":  userID,
			"username": p.Username,
			"message":  message,
			"at":       h.clk.Now(),
		}})
		return RoomSnapshot{}, nil
	})
	return err
}

// Disconnect marks the user's connection absent but keeps their seat so they
// can reconnect. A waiting room with nobody connected is cancelled.
func (h *Hub) Disconnect(userID string) {
	h.do(func() {
		code, ok := h.byUser[userID]
		if !ok {
			return
		}
		room, ok := h.rooms[code]
		if !ok {
			return
		}
		p := room.participant(userID)
		if p == nil {
			return
		}
		p.Conn = nil

		if room.Status == model.DuelWaiting {
			anyConnected := false
			for _, rp := range room.Participants {
				if rp.Conn != nil {
					anyConnected = true
					break
				}
			}
			if !anyConnected {
				room.Status = model.DuelCancelled
				h.removeRoom(room)
				return
			}
		}
		room.broadcast(Event{Type: EventParticipantDropped, Payload: room.snapshot()})
	})
}

// Room returns a snapshot of a live room.
func (h *Hub) Room(roomCode string) (RoomSnapshot, error) {
	return h.run1(func() (RoomSnapshot, error) {
		room, ok := h.rooms[roomCode]
		if !ok {
			return RoomSnapshot{}, ErrRoomNotFound
		}
		return room.snapshot(), nil
	})
}

// finish runs on the hub goroutine. An empty winnerID finishes the duel with
// no winner (a draw for non-disqualified participants).
func (h *Hub) finish(room *Room, winnerID string) {
	room.Status = model.DuelFinished
	room.WinnerID = winnerID
	room.EndedAt = h.clk.Now()

	eventType := EventDuelFinished
	if room.Kind == model.DuelTyping {
		eventType = EventTypingDuelFinished
	}
	room.broadcast(Event{Type: eventType, Payload: room.snapshot()})

	// Persisting outcomes touches the database; do it off the hub goroutine.
	outcomes := h.collectOutcomes(room, winnerID)
	go h.persistOutcomes(room.Code, room.Kind, room.ProblemID, room.StartedAt, room.EndedAt, outcomes)

	h.removeRoom(room)
}

type participantOutcome struct {
	userID     string
	opponentID string
	outcome    model.DuelOutcome
}

func (h *Hub) collectOutcomes(room *Room, winnerID string) []participantOutcome {
	var outcomes []participantOutcome
	for _, p := range room.Participants {
		outcome := model.OutcomeDraw
		switch {
		case p.UserID == winnerID:
			outcome = model.OutcomeWin
		case winnerID != "" || p.Disqualified:
			outcome = model.OutcomeLoss
		}
		opponentID := ""
		if len(room.Participants) == 2 {
			for _, o := range room.Participants {
				if o.UserID != p.UserID {
					opponentID = o.UserID
				}
			}
		}
		outcomes = append(outcomes, participantOutcome{userID: p.UserID, opponentID: opponentID, outcome: outcome})
	}
	return outcomes
}

func (h *Hub) persistOutcomes(roomCode string, kind model.DuelKind, problemID string, startedAt, endedAt time.Time, outcomes []participantOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var problemRef *string
	if problemID != "" {
		problemRef = &problemID
	}
	for _, o := range outcomes {
		history := &model.DuelHistory{
			ID:         uuid.NewString(),
			RoomCode:   roomCode,
			Kind:       kind,
			UserID:     o.userID,
			OpponentID: o.opponentID,
			Outcome:    o.outcome,
			ProblemID:  problemRef,
			StartedAt:  startedAt,
			EndedAt:    endedAt,
		}
		if err := h.duelRepo.CreateHistory(ctx, history); err != nil {
			log.Printf("ERROR: failed to persist duel history for user %s in room %s: %v", o.userID, roomCode, err)
		}

		xp := lossXP
		switch o.outcome {
		case model.OutcomeWin:
			xp = winXP
		case model.OutcomeDraw:
			xp = drawXP
		}
		if err := h.duelRepo.RecordOutcome(ctx, o.userID, o.outcome, xp); err != nil {
			log.Printf("ERROR: failed to record duel stats for user %s: %v", o.userID, err)
		}
	}
}

func (h *Hub) removeRoom(room *Room) {
	for _, p := range room.Participants {
		if h.byUser[p.UserID] == room.Code {
			delete(h.byUser, p.UserID)
		}
	}
	delete(h.rooms, room.Code)
}

func (h *Hub) newRoomCode() string {
	for {
		code := strings.ToUpper(uuid.NewString()[:6])
		if _, exists := h.rooms[code]; !exists {
			return code
		}
	}
}
