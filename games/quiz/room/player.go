/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"time"

	"github.com/Seednode/quizbox/games/quiz/pack"
)

type State string

const (
	StateWaiting      State = "waiting"      // lobby, team selection
	StatePlaying      State = "playing"      // one question open for answers
	StateIntermission State = "intermission" // round resolved, host advances
	StateFinished     State = "finished"     // all questions played
)

type Status string

const (
	StatusActive   Status = "active"             // may answer the current round
	StatusAnswered Status = "waiting"            // submitted for the current round
	StatusLateJoin Status = "waiting-next-round" // joined mid-game, plays from the next round
)

// Profile is the identity a client presents when creating or joining a room.
type Profile struct {
	UserID   string
	Nickname string
	Avatar   string
}

type Player struct {
	ID         string    `json:"-"` // connection id, changes on reconnect
	UserID     string    `json:"id"`
	Nickname   string    `json:"nickname"`
	Avatar     string    `json:"avatar,omitempty"`
	Score      int       `json:"score"`
	IsHost     bool      `json:"is_host"`
	Status     Status    `json:"status"`
	TeamID     string    `json:"team_id,omitempty"`
	TeammateID string    `json:"teammate_id,omitempty"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Team has exactly two spots; an empty string is a free spot.
type Team struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Spots [2]string `json:"spots"`
}

func (t Team) Full() bool {
	return t.Spots[0] != "" && t.Spots[1] != ""
}

// Settings are chosen by the host when creating a room.
type Settings struct {
	PackID        string
	QuestionCount int // 0 plays every question in the pack
	RoundTime     time.Duration
}

// Rules are server-wide policies applied to every room.
type Rules struct {
	// MaxPlayers caps the roster, host included. 0 means no cap.
	MaxPlayers int
	// MigrateHost promotes the longest-present player when the host leaves.
	// Without it the room closes.
	MigrateHost bool
	// RequireAll makes every active player required before a round can end
	// early, instead of only those online when the round started.
	RequireAll bool
	// Online reports whether a player has a live connection in a room.
	Online func(code, userID string) bool
}

// Outcome is one player's result for the current round.
type Outcome struct {
	Answer  Submission
	Correct bool
	Pending bool
}

type JoinResult struct {
	Player   Player
	Rejoined bool
	LateJoin bool
}

type LeaveResult struct {
	Removed bool
	Player  Player
	// Empty is set when nobody is left in the room.
	Empty bool
	// NewHost is the user id of a player promoted after the host left.
	NewHost string
	// Closed is set when the host left and could not be replaced.
	Closed bool
}

type TeamResult struct {
	Teams []Team
	Team  int
	Full  bool
}

type QuestionPayload struct {
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Question pack.Question `json:"question"`
	Seconds  int           `json:"seconds,omitempty"`
}

type SubmitResult struct {
	UserID string
	// Pending results must not be announced yet: team answers wait for the
	// teammate, unique answers wait for the round to end.
	Pending     bool
	Correct     bool
	AllAnswered bool
}

type ScoreEntry struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
	Score    int    `json:"score"`
	TeamID   string `json:"team_id,omitempty"`
}

type AnswerEntry struct {
	ID       string     `json:"id"`
	Nickname string     `json:"nickname"`
	Answer   Submission `json:"answer"`
	Correct  bool       `json:"correct"`
}

type RoundResult struct {
	Round             int           `json:"round"`
	CorrectAnswer     *string       `json:"correct_answer"`
	Answers           []AnswerEntry `json:"answers"`
	Scoreboard        []ScoreEntry  `json:"scoreboard"`
	NextQuestionIndex int           `json:"next_question_index"`
	Total             int           `json:"total"`
	Finished          bool          `json:"finished"`
	Winner            *ScoreEntry   `json:"winner,omitempty"`
}

type GameOver struct {
	Scoreboard []ScoreEntry `json:"scoreboard"`
	Winner     *ScoreEntry  `json:"winner,omitempty"`
}

// Advance holds exactly one of the next question or the end of the game.
type Advance struct {
	Question *QuestionPayload
	GameOver *GameOver
}

type Snapshot struct {
	Code     string       `json:"code"`
	State    State        `json:"state"`
	HostID   string       `json:"host_id"`
	Pack     pack.Summary `json:"pack"`
	Round    int          `json:"round"`
	Total    int          `json:"total"`
	Players  []Player     `json:"players"`
	Teams    []Team       `json:"teams,omitempty"`
	Answered int          `json:"answered"`
	Required int          `json:"required"`
}

// Summary describes a joinable room in lobby listings.
type Summary struct {
	Code      string    `json:"code"`
	Host      string    `json:"host"`
	PackID    string    `json:"pack_id"`
	PackTitle string    `json:"pack_title"`
	State     State     `json:"state"`
	Players   int       `json:"players"`
	CreatedAt time.Time `json:"created_at"`
}
