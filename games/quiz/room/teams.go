/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"fmt"
	"slices"
)

// JoinTeam moves a player into a team spot during the lobby. A player holds
// at most one spot, so any previous spot is released first.
func (s *Session) JoinTeam(userID string, teamIndex, spotIndex int) (TeamResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWaiting {
		return TeamResult{}, ErrGameInProgress
	}

	if !s.pack.SupportsTeams() {
		return TeamResult{}, ErrTeamsNotSupported
	}

	p := s.playerLocked(userID)
	if p == nil {
		return TeamResult{}, ErrPlayerNotFound
	}
	if p.IsHost {
		return TeamResult{}, ErrHostCannotPlay
	}

	if teamIndex < 0 || teamIndex >= len(s.teams) {
		return TeamResult{}, ErrInvalidTeam
	}

	team := &s.teams[teamIndex]
	if spotIndex < 0 || spotIndex >= len(team.Spots) {
		return TeamResult{}, ErrInvalidSpot
	}

	switch team.Spots[spotIndex] {
	case userID:
		return TeamResult{Teams: slices.Clone(s.teams), Team: teamIndex, Full: team.Full()}, nil
	case "":
	default:
		return TeamResult{}, ErrSpotOccupied
	}

	for i := range s.teams {
		for j := range s.teams[i].Spots {
			if s.teams[i].Spots[j] == userID {
				s.teams[i].Spots[j] = ""
			}
		}
	}

	team.Spots[spotIndex] = userID
	p.TeamID = team.ID
	s.touchLocked()

	return TeamResult{
		Teams: slices.Clone(s.teams),
		Team:  teamIndex,
		Full:  team.Full(),
	}, nil
}

func (s *Session) Teams() []Team {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.teams)
}

// pairTeamsLocked assigns every playing non-host player a teammate. Teams
// filled by hand in the lobby are kept; everyone else is shuffled into new
// pairs, and an odd player out plays alone.
func (s *Session) pairTeamsLocked() {
	for _, p := range s.players {
		p.TeamID = ""
		p.TeammateID = ""
	}

	paired := make(map[string]bool)

	for i := range s.teams {
		t := &s.teams[i]

		a, b := s.playerLocked(t.Spots[0]), s.playerLocked(t.Spots[1])
		if a == nil || b == nil || !t.Full() {
			t.Spots = [2]string{}
			continue
		}

		a.TeamID, b.TeamID = t.ID, t.ID
		a.TeammateID, b.TeammateID = b.UserID, a.UserID
		paired[a.UserID], paired[b.UserID] = true, true
	}

	var rest []*Player
	for _, p := range s.players {
		if p.IsHost || p.Status == StatusLateJoin || paired[p.UserID] {
			continue
		}
		rest = append(rest, p)
	}

	s.shuffle(rest)

	for len(rest) >= 2 {
		a, b := rest[0], rest[1]
		rest = rest[2:]

		n := len(s.teams) + 1
		t := Team{
			ID:    fmt.Sprintf("team-%d", n),
			Name:  fmt.Sprintf("Team %d", n),
			Spots: [2]string{a.UserID, b.UserID},
		}
		s.teams = append(s.teams, t)

		a.TeamID, b.TeamID = t.ID, t.ID
		a.TeammateID, b.TeammateID = b.UserID, a.UserID
	}
}
