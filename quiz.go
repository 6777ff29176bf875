/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Quizbox Quiz Game
//
// A host creates a room from a question pack and shares its six digit code.
// Players join with a nickname, and the host drives the game one question at
// a time. Rounds end when every required player has answered or the round
// timer expires, whichever happens first.
//
// Features:
// - One WebSocket per browser tab; the room is named in each message
// - Players identified by cookie, so a reconnect keeps their seat and score
// - Standard, team (both teammates must agree) and duplicate (only unique
//   answers score) packs
// - Late joiners spectate until the next question
// - Disconnected players keep their place for a grace period
// - Host migration when the host leaves, or the room closes if disabled
// - Idle rooms reaped after a configurable timeout
// - QR code share link, backed by go-qrcode

package main

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/quizbox/games/quiz/pack"
	"github.com/Seednode/quizbox/games/quiz/presence"
	"github.com/Seednode/quizbox/games/quiz/room"
)

var (
	errAlreadyInRoom   = errors.New("leave your current room first")
	errNotInRoom       = errors.New("you are not in that room")
	errUnknownMessage  = errors.New("unknown message type")
	errRateLimited     = errors.New("slow down")
	errMalformedPacket = errors.New("malformed message")
	errInvalidSettings = errors.New("question count must be at least 1 and round seconds must not be negative")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{room.ErrNotAuthorized, "not_authorized"},
	{room.ErrRoomNotFound, "room_not_found"},
	{room.ErrRoomFinished, "room_finished"},
	{room.ErrRoomFull, "room_full"},
	{room.ErrRoomCreationFailed, "room_creation_failed"},
	{room.ErrNicknameTaken, "nickname_taken"},
	{room.ErrInvalidNickname, "invalid_nickname"},
	{room.ErrPlayerNotFound, "player_not_found"},
	{room.ErrHostCannotPlay, "host_cannot_play"},
	{room.ErrTeamsNotSupported, "teams_not_supported"},
	{room.ErrInvalidTeam, "invalid_team"},
	{room.ErrInvalidSpot, "invalid_spot"},
	{room.ErrSpotOccupied, "spot_occupied"},
	{room.ErrNoQuestions, "no_questions"},
	{room.ErrGameInProgress, "game_in_progress"},
	{room.ErrNotInIntermission, "not_in_intermission"},
	{errAlreadyInRoom, "already_in_room"},
	{errNotInRoom, "not_in_room"},
	{errUnknownMessage, "unknown_message"},
	{errRateLimited, "rate_limited"},
	{errMalformedPacket, "malformed_message"},
	{errInvalidSettings, "invalid_settings"},
}

// errorCode maps an error to the stable code clients switch on.
func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}

	return "internal_error"
}

func newErrorMessage(err error) errorMessage {
	return errorMessage{
		Type:    "error",
		Code:    errorCode(err),
		Message: err.Error(),
	}
}

// quizClient is one WebSocket connection. A client is in at most one room.
type quizClient struct {
	id     string // connection id, new for every connection
	userID string // stable across reconnects

	mu     sync.Mutex
	send   chan any
	closed bool
	code   string
}

func newQuizClient(id, userID string) *quizClient {
	return &quizClient{
		id:     id,
		userID: userID,
		send:   make(chan any, 32),
	}
}

// trySend queues msg without blocking. A client that cannot keep up is
// closed, which ends its write pump and with it the connection.
func (c *quizClient) trySend(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.closed = true
		close(c.send)

		return false
	}
}

func (c *quizClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *quizClient) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.code
}

func (c *quizClient) setRoom(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.code = code
}

// leaveRoom clears the client's room only if it is still code.
func (c *quizClient) leaveRoom(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.code == code {
		c.code = ""
	}
}

// quizHub owns one room. Every session call for the room, and the broadcast
// that follows it, happens under mu, so clients see a room's events in the
// order they were applied.
type quizHub struct {
	mu sync.Mutex

	code     string
	session  *room.Session
	clients  map[*quizClient]bool
	timer    *time.Timer
	deadline time.Time
	game     int // bumped on every start and reset
	closed   bool
}

func newQuizHub(s *room.Session) *quizHub {
	return &quizHub{
		code:    s.Code(),
		session: s,
		clients: make(map[*quizClient]bool),
	}
}

func (h *quizHub) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.deadline = time.Time{}
}

func (h *quizHub) sendLocked(c *quizClient, msg any) {
	if !c.trySend(msg) {
		delete(h.clients, c)
	}
}

func (h *quizHub) broadcastLocked(msg any) {
	for c := range h.clients {
		h.sendLocked(c, msg)
	}
}

func (h *quizHub) sendToUserLocked(userID string, msg any) {
	for c := range h.clients {
		if c.userID == userID {
			h.sendLocked(c, msg)
		}
	}
}

// quizManager routes client messages to rooms. Lock order is hub before
// manager: mu is never held while taking a hub lock.
type quizManager struct {
	cfg      *Config
	catalog  *pack.Catalog
	store    room.Store
	presence *presence.Tracker

	mu   sync.Mutex
	hubs map[string]*quizHub

	done     chan struct{}
	stopOnce sync.Once
}

func newQuizManager(cfg *Config, catalog *pack.Catalog) *quizManager {
	tracker := presence.New()

	qm := &quizManager{
		cfg:      cfg,
		catalog:  catalog,
		presence: tracker,
		store: room.NewMemoryStore(catalog, room.Rules{
			MaxPlayers:  cfg.maxPlayers,
			MigrateHost: cfg.migrateHost,
			RequireAll:  cfg.answerPolicy == answerPolicyAll,
			Online:      tracker.IsOnline,
		}),
		hubs: make(map[string]*quizHub),
		done: make(chan struct{}),
	}

	if cfg.sessionTimeout > 0 {
		go qm.reaperLoop()
	}

	return qm
}

func (qm *quizManager) hub(code string) *quizHub {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	return qm.hubs[code]
}

func (qm *quizManager) allHubs() []*quizHub {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	out := make([]*quizHub, 0, len(qm.hubs))
	for _, h := range qm.hubs {
		out = append(out, h)
	}

	return out
}

// handle applies one inbound message. Failures go back to the sender only.
func (qm *quizManager) handle(c *quizClient, msg quizInbound) {
	var err error

	switch msg.Type {
	case msgCreateRoom:
		err = qm.createRoom(c, msg)
	case msgJoinRoom:
		err = qm.joinRoom(c, msg)
	case msgLeaveRoom:
		err = qm.leaveRoom(c, msg)
	case msgJoinTeam, msgStartGame, msgSubmitAnswer, msgEndRound, msgNextQuestion, msgKickPlayer, msgResetGame:
		err = qm.roomAction(c, msg)
	default:
		err = errUnknownMessage
	}

	if err != nil {
		c.trySend(newErrorMessage(err))
	}
}

func (qm *quizManager) createRoom(c *quizClient, msg quizInbound) error {
	if c.room() != "" {
		return errAlreadyInRoom
	}

	nickname := strings.TrimSpace(msg.Nickname)
	if nickname == "" {
		return room.ErrInvalidNickname
	}

	settings := room.Settings{
		PackID:        msg.PackID,
		QuestionCount: qm.cfg.questionCount,
		RoundTime:     qm.cfg.roundTime,
	}
	if msg.QuestionCount != nil {
		if *msg.QuestionCount < 1 {
			return errInvalidSettings
		}
		settings.QuestionCount = *msg.QuestionCount
	}
	if msg.RoundSeconds != nil {
		if *msg.RoundSeconds < 0 {
			return errInvalidSettings
		}
		settings.RoundTime = time.Duration(*msg.RoundSeconds) * time.Second
	}

	s, err := qm.store.Create(room.Profile{UserID: c.userID, Nickname: nickname, Avatar: msg.Avatar}, c.id, settings)
	if err != nil {
		return err
	}

	h := newQuizHub(s)

	h.mu.Lock()
	defer h.mu.Unlock()

	qm.mu.Lock()
	qm.hubs[h.code] = h
	qm.mu.Unlock()

	qm.attachLocked(h, c)

	logf(qm.cfg, "GAMES: %q created room %s with pack %q", nickname, h.code, s.Pack().ID)

	h.sendLocked(c, roomCreatedMessage{
		Type: "room_created",
		Code: h.code,
		Pack: s.Pack().Summary(),
	})
	qm.sendSessionInfoLocked(h, c, room.JoinResult{})
	qm.broadcastRosterLocked(h)
	qm.broadcastTeamsLocked(h, "")

	return nil
}

func (qm *quizManager) joinRoom(c *quizClient, msg quizInbound) error {
	if current := c.room(); current != "" && current != msg.Code {
		return errAlreadyInRoom
	}

	h := qm.hub(msg.Code)
	if h == nil {
		return room.ErrRoomNotFound
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return room.ErrRoomNotFound
	}

	res, err := h.session.Join(c.userID, c.id, msg.Nickname, msg.Avatar)
	if err != nil {
		return err
	}

	qm.attachLocked(h, c)

	if res.Rejoined {
		logf(qm.cfg, "GAMES: %q rejoined room %s", res.Player.Nickname, h.code)
	} else {
		logf(qm.cfg, "GAMES: %q joined room %s", res.Player.Nickname, h.code)
	}

	qm.sendSessionInfoLocked(h, c, res)

	if q, ok := h.session.Current(); ok {
		h.sendLocked(c, qm.questionMessageLocked(h, q))
	}

	qm.broadcastRosterLocked(h)
	qm.broadcastTeamsLocked(h, "")

	return nil
}

func (qm *quizManager) leaveRoom(c *quizClient, msg quizInbound) error {
	h, err := qm.hubFor(c, msg.Code)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return room.ErrRoomNotFound
	}

	res := h.session.Leave(c.userID)
	qm.detachUserLocked(h, c.userID)

	if res.Removed {
		logf(qm.cfg, "GAMES: %q left room %s", res.Player.Nickname, h.code)
	}

	qm.afterLeaveLocked(h, res)

	return nil
}

// hubFor resolves the room a message is addressed to, which must be the
// room the client is in. An empty code means the client's current room.
func (qm *quizManager) hubFor(c *quizClient, code string) (*quizHub, error) {
	current := c.room()
	if code == "" {
		code = current
	}
	if code == "" || code != current {
		return nil, errNotInRoom
	}

	h := qm.hub(code)
	if h == nil {
		return nil, room.ErrRoomNotFound
	}

	return h, nil
}

func (qm *quizManager) roomAction(c *quizClient, msg quizInbound) error {
	h, err := qm.hubFor(c, msg.Code)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return room.ErrRoomNotFound
	}

	switch msg.Type {
	case msgJoinTeam:
		return qm.joinTeamLocked(h, c, msg)
	case msgStartGame:
		return qm.startLocked(h, c)
	case msgSubmitAnswer:
		return qm.submitLocked(h, c, msg)
	case msgEndRound:
		return qm.endRoundLocked(h, c.userID, h.session.Round())
	case msgNextQuestion:
		return qm.advanceLocked(h, c)
	case msgKickPlayer:
		return qm.kickLocked(h, c, msg)
	case msgResetGame:
		return qm.resetLocked(h, c)
	}

	return errUnknownMessage
}

func (qm *quizManager) joinTeamLocked(h *quizHub, c *quizClient, msg quizInbound) error {
	res, err := h.session.JoinTeam(c.userID, msg.TeamIndex, msg.SpotIndex)
	if err != nil {
		return err
	}

	full := ""
	if res.Full {
		full = res.Teams[res.Team].ID
	}

	qm.broadcastTeamsLocked(h, full)
	qm.broadcastRosterLocked(h)

	return nil
}

func (qm *quizManager) startLocked(h *quizHub, c *quizClient) error {
	q, err := h.session.Start(c.userID)
	if err != nil {
		return err
	}

	h.game++

	logf(qm.cfg, "GAMES: Room %s started with %d questions", h.code, q.Total)

	qm.broadcastRosterLocked(h)
	qm.broadcastTeamsLocked(h, "")
	qm.broadcastQuestionLocked(h, q)

	return nil
}

func (qm *quizManager) submitLocked(h *quizHub, c *quizClient, msg quizInbound) error {
	round := h.session.Round()

	res := h.session.Submit(c.userID, msg.Answer)
	if res == nil {
		return nil
	}

	h.sendLocked(c, answerReceivedMessage{
		Type:  "answer_received",
		Code:  h.code,
		Round: round,
	})

	answered, required := h.session.Progress()
	h.broadcastLocked(answerProgressMessage{
		Type:     "answer_progress",
		Code:     h.code,
		Answered: answered,
		Required: required,
	})

	if res.AllAnswered {
		return qm.endRoundLocked(h, h.session.HostID(), round)
	}

	return nil
}

// endRoundLocked is shared by the host, the round timer and the
// everyone-answered check. Only the first caller for a round broadcasts.
func (qm *quizManager) endRoundLocked(h *quizHub, requesterID string, round int) error {
	res, ended, err := h.session.EndRound(requesterID, round)
	if err != nil || !ended {
		return err
	}

	h.stopTimerLocked()

	logf(qm.cfg, "GAMES: Room %s finished round %d of %d", h.code, res.Round+1, res.Total)

	h.broadcastLocked(roundEndedMessage{
		Type:        "round_ended",
		Code:        h.code,
		RoundResult: res,
	})
	qm.broadcastRosterLocked(h)

	if res.Finished {
		qm.broadcastGameOverLocked(h, room.GameOver{Scoreboard: res.Scoreboard, Winner: res.Winner})
	}

	return nil
}

func (qm *quizManager) advanceLocked(h *quizHub, c *quizClient) error {
	adv, err := h.session.Advance(c.userID)
	if err != nil {
		return err
	}

	if adv.GameOver != nil {
		qm.broadcastGameOverLocked(h, *adv.GameOver)

		return nil
	}

	qm.broadcastRosterLocked(h)
	qm.broadcastQuestionLocked(h, *adv.Question)

	return nil
}

func (qm *quizManager) kickLocked(h *quizHub, c *quizClient, msg quizInbound) error {
	p, kicked, err := h.session.Kick(c.userID, msg.TargetID)
	if err != nil || !kicked {
		return err
	}

	logf(qm.cfg, "GAMES: %q was kicked from room %s", p.Nickname, h.code)

	h.sendToUserLocked(p.UserID, kickedMessage{
		Type:    "kicked",
		Code:    h.code,
		Message: "You have been removed by the host.",
	})
	qm.detachUserLocked(h, p.UserID)

	qm.afterLeaveLocked(h, room.LeaveResult{Removed: true, Player: p})

	return nil
}

func (qm *quizManager) resetLocked(h *quizHub, c *quizClient) error {
	if err := h.session.Reset(c.userID); err != nil {
		return err
	}

	h.stopTimerLocked()
	h.game++

	logf(qm.cfg, "GAMES: Room %s was reset", h.code)

	qm.broadcastRosterLocked(h)
	qm.broadcastTeamsLocked(h, "")

	return nil
}

// afterLeaveLocked tells the room about a removed player, and closes the
// room if nobody is left or no host could be found.
func (qm *quizManager) afterLeaveLocked(h *quizHub, res room.LeaveResult) {
	if !res.Removed {
		return
	}

	switch {
	case res.Empty:
		qm.closeRoomLocked(h, "empty")

		return
	case res.Closed:
		qm.closeRoomLocked(h, "host_left")

		return
	}

	if res.NewHost != "" {
		logf(qm.cfg, "GAMES: Room %s has a new host", h.code)

		for cl := range h.clients {
			if cl.userID == res.NewHost {
				qm.sendSessionInfoLocked(h, cl, room.JoinResult{})
			}
		}
	}

	qm.broadcastRosterLocked(h)
	qm.broadcastTeamsLocked(h, "")

	if h.session.AllAnswered() {
		if err := qm.endRoundLocked(h, h.session.HostID(), h.session.Round()); err != nil {
			errorf("GAMES: Ending round in room %s: %v", h.code, err)
		}
	}
}

func (qm *quizManager) attachLocked(h *quizHub, c *quizClient) {
	h.clients[c] = true
	c.setRoom(h.code)
	qm.presence.Connect(h.code, c.userID, c.id)
}

// detachUserLocked takes every connection of a player out of the room
// without closing them, so they can join another.
func (qm *quizManager) detachUserLocked(h *quizHub, userID string) {
	for c := range h.clients {
		if c.userID == userID {
			c.leaveRoom(h.code)
			delete(h.clients, c)
		}
	}

	qm.presence.Forget(h.code, userID)
}

// disconnect runs when a connection ends. The player keeps their place until
// the reconnect grace period passes.
func (qm *quizManager) disconnect(c *quizClient) {
	c.close()

	code := c.room()
	if code == "" {
		return
	}

	h := qm.hub(code)
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c)

	userID, offline := qm.presence.Disconnect(code, c.id)
	if !offline || h.closed {
		return
	}

	logf(qm.cfg, "GAMES: Player %s went offline in room %s", userID, code)

	qm.broadcastRosterLocked(h)

	time.AfterFunc(qm.cfg.reconnectGrace, func() {
		qm.expire(h, userID)
	})
}

// expire removes a player whose grace period ran out, then tears the room
// down if no connection is left in it.
func (qm *quizManager) expire(h *quizHub, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || qm.presence.IsOnline(h.code, userID) {
		return
	}

	// A newer disconnect has its own timer.
	offline, ok := qm.presence.OfflineFor(h.code, userID)
	if !ok || offline < qm.cfg.reconnectGrace {
		return
	}

	res := h.session.Leave(userID)
	qm.presence.Forget(h.code, userID)

	if res.Removed {
		logf(qm.cfg, "GAMES: %q timed out of room %s", res.Player.Nickname, h.code)
	}

	qm.afterLeaveLocked(h, res)

	if h.closed || qm.presence.OnlineCount(h.code) > 0 {
		return
	}

	// Someone else is still inside their grace period; their timer closes
	// the room if they do not come back.
	if d, ok := qm.presence.LastOffline(h.code); ok && d < qm.cfg.reconnectGrace {
		return
	}

	qm.closeRoomLocked(h, "abandoned")
}

func (qm *quizManager) closeRoomLocked(h *quizHub, reason string) {
	if h.closed {
		return
	}

	h.closed = true
	h.stopTimerLocked()

	h.broadcastLocked(roomClosedMessage{
		Type:   "room_closed",
		Code:   h.code,
		Reason: reason,
	})

	for c := range h.clients {
		c.leaveRoom(h.code)
		delete(h.clients, c)
	}

	qm.presence.Drop(h.code)
	qm.store.Destroy(h.code)

	qm.mu.Lock()
	if qm.hubs[h.code] == h {
		delete(qm.hubs, h.code)
	}
	qm.mu.Unlock()

	logf(qm.cfg, "GAMES: Closed room %s (%s)", h.code, reason)
}

func (qm *quizManager) sendSessionInfoLocked(h *quizHub, c *quizClient, res room.JoinResult) {
	h.sendLocked(c, sessionInfoMessage{
		Type:     "session_info",
		Code:     h.code,
		You:      c.userID,
		IsHost:   h.session.IsHost(c.userID),
		Rejoined: res.Rejoined,
		LateJoin: res.LateJoin,
		State:    h.session.State(),
		Pack:     h.session.Pack().Summary(),
	})
}

func (qm *quizManager) broadcastRosterLocked(h *quizHub) {
	snap := h.session.Snapshot()

	h.broadcastLocked(rosterMessage{
		Type:     "roster",
		Code:     snap.Code,
		State:    snap.State,
		HostID:   snap.HostID,
		Players:  snap.Players,
		Online:   qm.presence.OnlinePlayers(h.code),
		Answered: snap.Answered,
		Required: snap.Required,
	})
}

func (qm *quizManager) broadcastTeamsLocked(h *quizHub, fullTeam string) {
	if !h.session.Pack().SupportsTeams() {
		return
	}

	h.broadcastLocked(teamsMessage{
		Type:     "teams",
		Code:     h.code,
		Teams:    h.session.Teams(),
		FullTeam: fullTeam,
	})
}

// broadcastQuestionLocked opens a round: it arms the round timer and sends
// the question to everyone in the room.
func (qm *quizManager) broadcastQuestionLocked(h *quizHub, q room.QuestionPayload) {
	h.stopTimerLocked()

	if d := h.session.Settings().RoundTime; d > 0 {
		game, round := h.game, q.Index
		h.deadline = time.Now().Add(d)
		h.timer = time.AfterFunc(d, func() {
			qm.roundExpired(h, game, round)
		})
	}

	h.broadcastLocked(qm.questionMessageLocked(h, q))
}

func (qm *quizManager) questionMessageLocked(h *quizHub, q room.QuestionPayload) questionMessage {
	msg := questionMessage{
		Type:            "question",
		Code:            h.code,
		QuestionPayload: q,
	}

	if !h.deadline.IsZero() {
		deadline := h.deadline
		msg.Deadline = &deadline
	}

	return msg
}

// roundExpired ends round of game, unless the room has since been reset or
// restarted.
func (qm *quizManager) roundExpired(h *quizHub, game, round int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.game != game {
		return
	}

	logf(qm.cfg, "GAMES: Time is up for round %d in room %s", round+1, h.code)

	if err := qm.endRoundLocked(h, h.session.HostID(), round); err != nil {
		errorf("GAMES: Ending round in room %s: %v", h.code, err)
	}
}

func (qm *quizManager) broadcastGameOverLocked(h *quizHub, over room.GameOver) {
	if over.Winner != nil {
		logf(qm.cfg, "GAMES: Room %s is over, %q wins with %d", h.code, over.Winner.Nickname, over.Winner.Score)
	}

	h.broadcastLocked(gameOverMessage{
		Type:     "game_over",
		Code:     h.code,
		GameOver: over,
	})
}

// reaperLoop periodically closes rooms that have been idle longer than
// --session-timeout.
func (qm *quizManager) reaperLoop() {
	ticker := time.NewTicker(qm.cfg.sessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-qm.done:
			return
		case <-ticker.C:
			qm.reap(time.Now().Add(-qm.cfg.sessionTimeout))
		}
	}
}

func (qm *quizManager) reap(cutoff time.Time) {
	for _, h := range qm.allHubs() {
		h.mu.Lock()
		if h.session.LastActive().Before(cutoff) {
			qm.closeRoomLocked(h, "idle")
		}
		h.mu.Unlock()
	}
}

// stop closes every room and ends the reaper.
func (qm *quizManager) stop() {
	qm.stopOnce.Do(func() {
		close(qm.done)

		for _, h := range qm.allHubs() {
			h.mu.Lock()
			qm.closeRoomLocked(h, "shutdown")
			h.mu.Unlock()
		}
	})
}
