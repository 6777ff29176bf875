/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"time"

	"github.com/Seednode/quizbox/games/quiz/pack"
	"github.com/Seednode/quizbox/games/quiz/room"
)

// Inbound message types.
const (
	msgCreateRoom   = "create_room"
	msgJoinRoom     = "join_room"
	msgJoinTeam     = "join_team"
	msgStartGame    = "start_game"
	msgSubmitAnswer = "submit_answer"
	msgEndRound     = "end_round"
	msgNextQuestion = "next_question"
	msgKickPlayer   = "kick_player"
	msgResetGame    = "reset_game"
	msgLeaveRoom    = "leave_room"
)

// quizInbound is every message a client may send; each type reads only the
// fields it needs.
type quizInbound struct {
	Type          string `json:"type"`
	Code          string `json:"code,omitempty"`           // every type but create_room
	Nickname      string `json:"nickname,omitempty"`       // create_room / join_room
	Avatar        string `json:"avatar,omitempty"`         // create_room / join_room
	PackID        string `json:"pack_id,omitempty"`        // create_room
	QuestionCount *int   `json:"question_count,omitempty"` // create_room; at least 1, omit for the server default
	RoundSeconds  *int   `json:"round_seconds,omitempty"`  // create_room; 0 disables the round timer
	TeamIndex     int    `json:"team_index"`               // join_team
	SpotIndex     int    `json:"spot_index"`               // join_team
	Answer        string `json:"answer"`                   // submit_answer
	TargetID      string `json:"target_id,omitempty"`      // kick_player
}

type roomCreatedMessage struct {
	Type string       `json:"type"` // "room_created"
	Code string       `json:"code"`
	Pack pack.Summary `json:"pack"`
}

// sessionInfoMessage tells one client who they are in the room they just
// entered.
type sessionInfoMessage struct {
	Type     string       `json:"type"` // "session_info"
	Code     string       `json:"code"`
	You      string       `json:"you"`
	IsHost   bool         `json:"is_host"`
	Rejoined bool         `json:"rejoined"`
	LateJoin bool         `json:"late_join"`
	State    room.State   `json:"state"`
	Pack     pack.Summary `json:"pack"`
}

type rosterMessage struct {
	Type     string        `json:"type"` // "roster"
	Code     string        `json:"code"`
	State    room.State    `json:"state"`
	HostID   string        `json:"host_id"`
	Players  []room.Player `json:"players"`
	Online   []string      `json:"online"`
	Answered int           `json:"answered"`
	Required int           `json:"required"`
}

type teamsMessage struct {
	Type     string      `json:"type"` // "teams"
	Code     string      `json:"code"`
	Teams    []room.Team `json:"teams"`
	FullTeam string      `json:"full_team,omitempty"` // team id that just filled up
}

type questionMessage struct {
	Type     string     `json:"type"` // "question"
	Code     string     `json:"code"`
	Deadline *time.Time `json:"deadline,omitempty"`
	room.QuestionPayload
}

// answerReceivedMessage acknowledges a submission to its sender only. It
// never carries correctness; results arrive with round_ended.
type answerReceivedMessage struct {
	Type  string `json:"type"` // "answer_received"
	Code  string `json:"code"`
	Round int    `json:"round"`
}

type answerProgressMessage struct {
	Type     string `json:"type"` // "answer_progress"
	Code     string `json:"code"`
	Answered int    `json:"answered"`
	Required int    `json:"required"`
}

type roundEndedMessage struct {
	Type string `json:"type"` // "round_ended"
	Code string `json:"code"`
	room.RoundResult
}

type gameOverMessage struct {
	Type string `json:"type"` // "game_over"
	Code string `json:"code"`
	room.GameOver
}

// kickedMessage goes only to the removed player's connections.
type kickedMessage struct {
	Type    string `json:"type"` // "kicked"
	Code    string `json:"code"`
	Message string `json:"message"`
}

type roomClosedMessage struct {
	Type   string `json:"type"` // "room_closed"
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// errorMessage is sent only to the client whose request failed.
type errorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}
