/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import "errors"

var (
	ErrNotAuthorized      = errors.New("only the host can do that")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFinished       = errors.New("game has finished")
	ErrRoomFull           = errors.New("room is full")
	ErrRoomCreationFailed = errors.New("unable to allocate a room code")
	ErrNicknameTaken      = errors.New("nickname already taken")
	ErrInvalidNickname    = errors.New("nickname must not be empty")
	ErrPlayerNotFound     = errors.New("player not in room")
	ErrHostCannotPlay     = errors.New("the host does not play")
	ErrTeamsNotSupported  = errors.New("pack has no teams")
	ErrInvalidTeam        = errors.New("no such team")
	ErrInvalidSpot        = errors.New("no such team spot")
	ErrSpotOccupied       = errors.New("team spot is taken")
	ErrNoQuestions        = errors.New("pack has no questions")
	ErrGameInProgress     = errors.New("game already started")
	ErrNotInIntermission  = errors.New("round has not ended")
)
