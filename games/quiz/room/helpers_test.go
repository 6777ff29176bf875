package room

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Seednode/quizbox/games/quiz/pack"
)

const hostID = "host"

func capitalsPack() pack.Pack {
	return pack.Pack{
		ID:    "capitals",
		Title: "Capitals",
		Mode:  pack.ModeStandard,
		Questions: []pack.Question{
			{ID: "q1", Text: "Capital of France?", Kind: pack.KindFreeText, CorrectAnswer: "Paris"},
			{ID: "q2", Text: "Capital of Japan?", Kind: pack.KindMCQ, Options: []string{"Tokyo", "Osaka"}, CorrectAnswer: "Tokyo"},
			{ID: "q3", Text: "Say anything", Kind: pack.KindFreeText},
		},
	}
}

func teamPack() pack.Pack {
	return pack.Pack{
		ID:    "in-sync",
		Title: "In Sync",
		Mode:  pack.ModeTeam,
		Teams: []pack.TeamTemplate{{Name: "Red"}, {Name: "Blue"}},
		Questions: []pack.Question{
			{ID: "t1", Text: "Capital of France?", Kind: pack.KindFreeText, CorrectAnswer: "Paris"},
			{ID: "t2", Text: "Name a fruit", Kind: pack.KindFreeText},
		},
	}
}

func duplicatePack() pack.Pack {
	return pack.Pack{
		ID:    "unique",
		Title: "Unique",
		Mode:  pack.ModeDuplicate,
		Questions: []pack.Question{
			{ID: "d1", Text: "Name an animal", Kind: pack.KindFreeText},
			{ID: "d2", Text: "Name a color", Kind: pack.KindFreeText},
		},
	}
}

// newSession opens a room hosted by hostID and joins the given players.
func newSession(t *testing.T, p pack.Pack, settings Settings, rules Rules, players ...string) *Session {
	t.Helper()

	s := NewSession("123456", Profile{UserID: hostID, Nickname: "Host"}, "conn-host", p, settings, rules)
	s.shuffle = func([]*Player) {}

	for _, id := range players {
		_, err := s.Join(id, "conn-"+id, id, "")
		require.NoError(t, err)
	}

	return s
}

func scoreOf(t *testing.T, s *Session, id string) int {
	t.Helper()

	p, ok := s.Player(id)
	require.True(t, ok, "player %q not found", id)

	return p.Score
}
