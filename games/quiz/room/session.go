/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/quizbox/games/quiz/pack"
)

// Session is the authoritative state of one room. Every method takes the
// session lock, so operations on one room are applied one at a time in the
// order they arrive; nothing in here blocks or performs I/O.
type Session struct {
	mu sync.Mutex

	code     string
	pack     pack.Pack
	settings Settings
	rules    Rules

	state   State
	hostID  string
	players []*Player // roster order, host first until migrated
	teams   []Team

	questions   []pack.Question
	index       int
	submissions map[string]Submission
	outcomes    map[string]*Outcome
	required    map[string]bool
	resolved    bool
	last        *RoundResult

	createdAt  time.Time
	lastActive time.Time

	now     func() time.Time
	shuffle func([]*Player)
}

// NewSession creates a room in the waiting state with the host as its only
// player.
func NewSession(code string, host Profile, hostConnID string, p pack.Pack, settings Settings, rules Rules) *Session {
	now := time.Now()

	s := &Session{
		code:        code,
		pack:        p,
		settings:    settings,
		rules:       rules,
		state:       StateWaiting,
		hostID:      host.UserID,
		teams:       teamsFromPack(p),
		submissions: make(map[string]Submission),
		outcomes:    make(map[string]*Outcome),
		required:    make(map[string]bool),
		createdAt:   now,
		lastActive:  now,
		now:         time.Now,
		shuffle: func(ps []*Player) {
			rand.Shuffle(len(ps), func(i, j int) { ps[i], ps[j] = ps[j], ps[i] })
		},
	}

	s.players = append(s.players, &Player{
		ID:       hostConnID,
		UserID:   host.UserID,
		Nickname: strings.TrimSpace(host.Nickname),
		Avatar:   host.Avatar,
		IsHost:   true,
		Status:   StatusActive,
		JoinedAt: now,
	})

	return s
}

func teamsFromPack(p pack.Pack) []Team {
	if !p.SupportsTeams() {
		return nil
	}

	teams := make([]Team, 0, len(p.Teams))
	for i, t := range p.Teams {
		teams = append(teams, Team{
			ID:   fmt.Sprintf("team-%d", i+1),
			Name: t.Name,
		})
	}

	return teams
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
}

func (s *Session) playerLocked(userID string) *Player {
	for _, p := range s.players {
		if p.UserID == userID {
			return p
		}
	}

	return nil
}

func (s *Session) nicknameTakenLocked(nickname, exceptUserID string) bool {
	for _, p := range s.players {
		if p.UserID != exceptUserID && p.Nickname == nickname {
			return true
		}
	}

	return false
}

// Join adds a player, or reconnects one already in the room by their stable
// user id.
func (s *Session) Join(userID, connID, nickname, avatar string) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return JoinResult{}, ErrInvalidNickname
	}

	if p := s.playerLocked(userID); p != nil {
		if s.nicknameTakenLocked(nickname, userID) {
			return JoinResult{}, ErrNicknameTaken
		}

		p.ID = connID
		p.Nickname = nickname
		if avatar != "" {
			p.Avatar = avatar
		}
		s.touchLocked()

		return JoinResult{Player: *p, Rejoined: true}, nil
	}

	if s.state == StateFinished {
		return JoinResult{}, ErrRoomFinished
	}

	if s.rules.MaxPlayers > 0 && len(s.players) >= s.rules.MaxPlayers {
		return JoinResult{}, ErrRoomFull
	}

	if s.nicknameTakenLocked(nickname, userID) {
		return JoinResult{}, ErrNicknameTaken
	}

	late := s.state != StateWaiting

	p := &Player{
		ID:       connID,
		UserID:   userID,
		Nickname: nickname,
		Avatar:   avatar,
		Status:   StatusActive,
		JoinedAt: s.now(),
	}
	if late {
		p.Status = StatusLateJoin
	}

	s.players = append(s.players, p)
	s.touchLocked()

	return JoinResult{Player: *p, LateJoin: late}, nil
}

// Leave removes a player. Leaving a room you are not in does nothing.
func (s *Session) Leave(userID string) LeaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(userID)
}

// Kick removes target on behalf of the host. kicked is false when the target
// was not in the room.
func (s *Session) Kick(requesterID, targetID string) (Player, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requesterID != s.hostID {
		return Player{}, false, ErrNotAuthorized
	}

	if targetID == requesterID {
		return Player{}, false, nil
	}

	res := s.removeLocked(targetID)

	return res.Player, res.Removed, nil
}

func (s *Session) removeLocked(userID string) LeaveResult {
	idx := slices.IndexFunc(s.players, func(p *Player) bool { return p.UserID == userID })
	if idx < 0 {
		return LeaveResult{}
	}

	p := s.players[idx]
	s.detachLocked(p)
	s.players = slices.Delete(s.players, idx, idx+1)
	s.touchLocked()

	res := LeaveResult{
		Removed: true,
		Player:  *p,
		Empty:   len(s.players) == 0,
	}

	if !p.IsHost || res.Empty {
		return res
	}

	if !s.rules.MigrateHost {
		res.Closed = true
		return res
	}

	next := s.players[0]
	s.detachLocked(next)
	next.IsHost = true
	next.Status = StatusActive
	s.hostID = next.UserID
	res.NewHost = next.UserID

	return res
}

// detachLocked takes a player out of play: frees their team spot, releases
// their teammate and drops anything they submitted this round.
func (s *Session) detachLocked(p *Player) {
	for i := range s.teams {
		for j := range s.teams[i].Spots {
			if s.teams[i].Spots[j] == p.UserID {
				s.teams[i].Spots[j] = ""
			}
		}
	}

	if p.TeammateID != "" {
		if mate := s.playerLocked(p.TeammateID); mate != nil {
			mate.TeammateID = ""
			s.regradeAloneLocked(mate)
		}
	}

	p.TeamID = ""
	p.TeammateID = ""

	delete(s.submissions, p.UserID)
	delete(s.outcomes, p.UserID)
	delete(s.required, p.UserID)
}

// regradeAloneLocked resolves a pending team answer as an individual one
// after the teammate left mid-round.
func (s *Session) regradeAloneLocked(p *Player) {
	if s.state != StatePlaying {
		return
	}

	o, ok := s.outcomes[p.UserID]
	if !ok || !o.Pending || s.pack.Mode != pack.ModeTeam {
		return
	}

	o.Pending = false
	o.Correct = gradeStandard(s.questions[s.index], o.Answer)
	if o.Correct {
		p.Score++
	}
}

// Reset returns a room to the lobby with the same code and roster.
func (s *Session) Reset(requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requesterID != s.hostID {
		return ErrNotAuthorized
	}

	s.state = StateWaiting
	s.teams = teamsFromPack(s.pack)
	s.questions = nil
	s.index = 0
	s.submissions = make(map[string]Submission)
	s.outcomes = make(map[string]*Outcome)
	s.required = make(map[string]bool)
	s.resolved = false
	s.last = nil

	for _, p := range s.players {
		p.Score = 0
		p.TeamID = ""
		p.TeammateID = ""
		p.Status = StatusActive
	}

	s.touchLocked()

	return nil
}

func (s *Session) Code() string {
	return s.code
}

func (s *Session) Pack() pack.Pack {
	return s.pack
}

func (s *Session) Settings() Settings {
	return s.settings
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) HostID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hostID
}

func (s *Session) IsHost(userID string) bool {
	return s.HostID() == userID
}

// Round returns the index of the current question.
func (s *Session) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActive
}

// Player returns a copy of a player in the room.
func (s *Session) Player(userID string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.playerLocked(userID)
	if p == nil {
		return Player{}, false
	}

	return *p, true
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Code:    s.code,
		State:   s.state,
		HostID:  s.hostID,
		Pack:    s.pack.Summary(),
		Round:   s.index,
		Total:   len(s.questions),
		Players: make([]Player, 0, len(s.players)),
		Teams:   slices.Clone(s.teams),
	}

	for _, p := range s.players {
		snap.Players = append(snap.Players, *p)
	}

	if s.state == StatePlaying {
		snap.Answered, snap.Required = s.progressLocked()
	}

	return snap
}

func (s *Session) summaryLocked() Summary {
	host := ""
	if p := s.playerLocked(s.hostID); p != nil {
		host = p.Nickname
	}

	return Summary{
		Code:      s.code,
		Host:      host,
		PackID:    s.pack.ID,
		PackTitle: s.pack.Title,
		State:     s.state,
		Players:   len(s.players),
		CreatedAt: s.createdAt,
	}
}
