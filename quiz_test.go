package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/quizbox/games/quiz/pack"
	"github.com/Seednode/quizbox/games/quiz/room"
)

func testConfig() *Config {
	return &Config{
		answerPolicy:   answerPolicyOnline,
		bind:           "127.0.0.1",
		maxPlayers:     15,
		messageBurst:   100,
		messageRate:    100,
		migrateHost:    true,
		port:           8080,
		reconnectGrace: time.Hour,
	}
}

func testCatalog(t *testing.T) *pack.Catalog {
	t.Helper()

	catalog, err := pack.New(
		pack.Pack{
			ID:    "capitals",
			Title: "Capitals",
			Questions: []pack.Question{
				{Text: "Capital of France?", CorrectAnswer: "Paris"},
				{Text: "Capital of Japan?", Options: []string{"Tokyo", "Osaka"}, CorrectAnswer: "Tokyo"},
			},
		},
		pack.Pack{
			ID:    "pairs",
			Title: "Pairs",
			Mode:  pack.ModeTeam,
			Teams: []pack.TeamTemplate{{Name: "Red"}},
			Questions: []pack.Question{
				{Text: "Capital of Italy?", CorrectAnswer: "Rome"},
			},
		},
	)
	require.NoError(t, err)

	return catalog
}

func newTestManager(t *testing.T, cfg *Config) *quizManager {
	t.Helper()

	qm := newQuizManager(cfg, testCatalog(t))
	t.Cleanup(qm.stop)

	return qm
}

var connSeq int

func newTestClient(userID string) *quizClient {
	connSeq++

	c := newQuizClient(fmt.Sprintf("conn-%d", connSeq), userID)
	c.send = make(chan any, 1024)

	return c
}

// next returns the next queued message of type T, discarding any others.
func next[T any](t *testing.T, c *quizClient) T {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.send:
			require.True(t, ok, "client %s was closed", c.userID)
			if m, ok := msg.(T); ok {
				return m
			}
		case <-timeout:
			var zero T
			require.FailNowf(t, "timed out", "no %T for %s", zero, c.userID)

			return zero
		}
	}
}

// pending drains every queued message of type T.
func pending[T any](c *quizClient) []T {
	var out []T
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			if m, ok := msg.(T); ok {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func createRoom(t *testing.T, qm *quizManager, host *quizClient, packID string) string {
	t.Helper()

	qm.handle(host, quizInbound{Type: msgCreateRoom, Nickname: "Host", PackID: packID})
	created := next[roomCreatedMessage](t, host)
	require.Len(t, created.Code, 6)

	return created.Code
}

func joinRoom(t *testing.T, qm *quizManager, code string, clients ...*quizClient) {
	t.Helper()

	for _, c := range clients {
		qm.handle(c, quizInbound{Type: msgJoinRoom, Code: code, Nickname: c.userID})
		info := next[sessionInfoMessage](t, c)
		require.Equal(t, code, info.Code)
	}
}

func TestQuizCreateAndJoin(t *testing.T) {
	qm := newTestManager(t, testConfig())
	host, alice, bob := newTestClient("host"), newTestClient("alice"), newTestClient("bob")

	code := createRoom(t, qm, host, "capitals")

	t.Run("creator is told they host", func(t *testing.T) {
		info := next[sessionInfoMessage](t, host)
		assert.True(t, info.IsHost)
		assert.Equal(t, room.StateWaiting, info.State)
		assert.Equal(t, "capitals", info.Pack.ID)
	})

	t.Run("joiners are broadcast to the room", func(t *testing.T) {
		qm.handle(alice, quizInbound{Type: msgJoinRoom, Code: code, Nickname: "alice"})

		info := next[sessionInfoMessage](t, alice)
		assert.False(t, info.IsHost)
		assert.Equal(t, "alice", info.You)

		pending[rosterMessage](host)
		roster := pending[rosterMessage](alice)
		require.NotEmpty(t, roster)
		assert.Len(t, roster[len(roster)-1].Players, 2)
		assert.Equal(t, []string{"alice", "host"}, roster[len(roster)-1].Online)
	})

	t.Run("errors go to the requester only", func(t *testing.T) {
		pending[errorMessage](host)

		qm.handle(bob, quizInbound{Type: msgJoinRoom, Code: code, Nickname: "alice"})
		e := next[errorMessage](t, bob)
		assert.Equal(t, "nickname_taken", e.Code)

		assert.Empty(t, pending[errorMessage](host))
		assert.Empty(t, pending[errorMessage](alice))
	})

	t.Run("unknown room", func(t *testing.T) {
		qm.handle(bob, quizInbound{Type: msgJoinRoom, Code: "000000x", Nickname: "bob"})
		assert.Equal(t, "room_not_found", next[errorMessage](t, bob).Code)
	})

	t.Run("one room per connection", func(t *testing.T) {
		qm.handle(alice, quizInbound{Type: msgCreateRoom, Nickname: "alice"})
		assert.Equal(t, "already_in_room", next[errorMessage](t, alice).Code)
	})

	t.Run("room settings are checked", func(t *testing.T) {
		zero, negative := 0, -1

		qm.handle(bob, quizInbound{Type: msgCreateRoom, Nickname: "bob", QuestionCount: &zero})
		assert.Equal(t, "invalid_settings", next[errorMessage](t, bob).Code)

		qm.handle(bob, quizInbound{Type: msgCreateRoom, Nickname: "bob", RoundSeconds: &negative})
		assert.Equal(t, "invalid_settings", next[errorMessage](t, bob).Code)

		assert.Empty(t, bob.room())
	})

	t.Run("missing nickname", func(t *testing.T) {
		qm.handle(bob, quizInbound{Type: msgCreateRoom})
		assert.Equal(t, "invalid_nickname", next[errorMessage](t, bob).Code)
	})

	t.Run("actions on a room you are not in", func(t *testing.T) {
		qm.handle(bob, quizInbound{Type: msgStartGame, Code: code})
		assert.Equal(t, "not_in_room", next[errorMessage](t, bob).Code)
	})

	t.Run("unknown message type", func(t *testing.T) {
		qm.handle(bob, quizInbound{Type: "dance"})
		assert.Equal(t, "unknown_message", next[errorMessage](t, bob).Code)
	})

	t.Run("rooms are listed while joinable", func(t *testing.T) {
		list := qm.store.ListActive()
		require.Len(t, list, 1)
		assert.Equal(t, code, list[0].Code)
		assert.Equal(t, 2, list[0].Players)
	})
}

func TestQuizRounds(t *testing.T) {
	qm := newTestManager(t, testConfig())
	host, alice, bob := newTestClient("host"), newTestClient("alice"), newTestClient("bob")

	code := createRoom(t, qm, host, "capitals")
	joinRoom(t, qm, code, alice, bob)

	t.Run("only the host starts", func(t *testing.T) {
		qm.handle(alice, quizInbound{Type: msgStartGame})
		assert.Equal(t, "not_authorized", next[errorMessage](t, alice).Code)
	})

	qm.handle(host, quizInbound{Type: msgStartGame, Code: code})

	t.Run("everyone gets the question without its answer", func(t *testing.T) {
		for _, c := range []*quizClient{host, alice, bob} {
			q := next[questionMessage](t, c)
			assert.Equal(t, 0, q.Index)
			assert.Equal(t, 2, q.Total)
			assert.Nil(t, q.Deadline, "no round timer configured")
		}
	})

	t.Run("submissions are acknowledged privately", func(t *testing.T) {
		qm.handle(alice, quizInbound{Type: msgSubmitAnswer, Answer: " PARIS"})

		ack := next[answerReceivedMessage](t, alice)
		assert.Equal(t, 0, ack.Round)
		assert.Empty(t, pending[answerReceivedMessage](bob))

		progress := next[answerProgressMessage](t, host)
		assert.Equal(t, 1, progress.Answered)
		assert.Equal(t, 2, progress.Required)
	})

	t.Run("duplicate submissions are silent", func(t *testing.T) {
		qm.handle(alice, quizInbound{Type: msgSubmitAnswer, Answer: "Lyon"})
		assert.Empty(t, pending[answerReceivedMessage](alice))
		assert.Empty(t, pending[errorMessage](alice))
	})

	t.Run("last answer ends the round once", func(t *testing.T) {
		qm.handle(bob, quizInbound{Type: msgSubmitAnswer, Answer: "Lyon"})

		res := next[roundEndedMessage](t, host)
		require.NotNil(t, res.CorrectAnswer)
		assert.Equal(t, "Paris", *res.CorrectAnswer)
		require.Len(t, res.Scoreboard, 2)
		assert.Equal(t, "alice", res.Scoreboard[0].ID)
		assert.Equal(t, 1, res.Scoreboard[0].Score)

		qm.handle(host, quizInbound{Type: msgEndRound})
		assert.Empty(t, pending[roundEndedMessage](host), "a resolved round is not ended again")
		assert.Empty(t, pending[errorMessage](host))
	})

	t.Run("host advances to the next question", func(t *testing.T) {
		qm.handle(alice, quizInbound{Type: msgNextQuestion})
		assert.Equal(t, "not_authorized", next[errorMessage](t, alice).Code)

		qm.handle(host, quizInbound{Type: msgNextQuestion})
		q := next[questionMessage](t, bob)
		assert.Equal(t, 1, q.Index)
		assert.Equal(t, []string{"Tokyo", "Osaka"}, q.Question.Options)
	})

	t.Run("host ends the final round early", func(t *testing.T) {
		pending[any](alice)

		qm.handle(bob, quizInbound{Type: msgSubmitAnswer, Answer: "tokyo"})
		qm.handle(host, quizInbound{Type: msgEndRound})

		res := next[roundEndedMessage](t, alice)
		assert.True(t, res.Finished)

		over := next[gameOverMessage](t, alice)
		require.NotNil(t, over.Winner)
		assert.Equal(t, "alice", over.Winner.ID, "ties keep join order")
	})

	t.Run("reset returns to the lobby", func(t *testing.T) {
		qm.handle(host, quizInbound{Type: msgResetGame})

		roster := next[rosterMessage](t, alice)
		assert.Equal(t, room.StateWaiting, roster.State)
		for _, p := range roster.Players {
			assert.Zero(t, p.Score)
		}
	})
}

func TestQuizRoundTimer(t *testing.T) {
	cfg := testConfig()
	cfg.roundTime = 20 * time.Millisecond

	qm := newTestManager(t, cfg)
	host, alice := newTestClient("host"), newTestClient("alice")

	code := createRoom(t, qm, host, "capitals")
	joinRoom(t, qm, code, alice)

	qm.handle(host, quizInbound{Type: msgStartGame})

	q := next[questionMessage](t, alice)
	require.NotNil(t, q.Deadline)

	res := next[roundEndedMessage](t, alice)
	assert.Equal(t, 0, res.Round)
	require.Len(t, res.Answers, 1)
	assert.True(t, res.Answers[0].Answer.NoAnswer)

	qm.handle(alice, quizInbound{Type: msgSubmitAnswer, Answer: "Paris"})
	assert.Empty(t, pending[answerReceivedMessage](alice), "answers after the timer are ignored")
}

func TestQuizOfflinePlayersDoNotBlock(t *testing.T) {
	qm := newTestManager(t, testConfig())
	host, alice, bob := newTestClient("host"), newTestClient("alice"), newTestClient("bob")

	code := createRoom(t, qm, host, "capitals")
	joinRoom(t, qm, code, alice, bob)

	qm.disconnect(bob)
	qm.handle(host, quizInbound{Type: msgStartGame})

	qm.handle(alice, quizInbound{Type: msgSubmitAnswer, Answer: "Paris"})

	res := next[roundEndedMessage](t, host)
	assert.Equal(t, 0, res.Round)
}

func TestQuizTeams(t *testing.T) {
	qm := newTestManager(t, testConfig())
	host, alice, bob := newTestClient("host"), newTestClient("alice"), newTestClient("bob")

	code := createRoom(t, qm, host, "pairs")
	require.NotEmpty(t, next[teamsMessage](t, host).Teams)
	joinRoom(t, qm, code, alice, bob)

	pending[any](host)
	qm.handle(alice, quizInbound{Type: msgJoinTeam, TeamIndex: 0, SpotIndex: 0})
	assert.Empty(t, next[teamsMessage](t, host).FullTeam)

	qm.handle(bob, quizInbound{Type: msgJoinTeam, TeamIndex: 0, SpotIndex: 0})
	assert.Equal(t, "spot_occupied", next[errorMessage](t, bob).Code)

	pending[any](host)
	qm.handle(bob, quizInbound{Type: msgJoinTeam, TeamIndex: 0, SpotIndex: 1})
	teams := next[teamsMessage](t, host)
	assert.Equal(t, "team-1", teams.FullTeam)

	qm.handle(host, quizInbound{Type: msgStartGame})
	next[questionMessage](t, alice)

	qm.handle(alice, quizInbound{Type: msgSubmitAnswer, Answer: "rome"})
	next[answerReceivedMessage](t, alice)
	assert.Empty(t, pending[roundEndedMessage](host))

	qm.handle(bob, quizInbound{Type: msgSubmitAnswer, Answer: "Rome "})
	res := next[roundEndedMessage](t, host)
	for _, entry := range res.Scoreboard {
		assert.Equal(t, 1, entry.Score, entry.ID)
	}
}

func TestQuizKick(t *testing.T) {
	qm := newTestManager(t, testConfig())
	host, alice, bob := newTestClient("host"), newTestClient("alice"), newTestClient("bob")

	code := createRoom(t, qm, host, "capitals")
	joinRoom(t, qm, code, alice, bob)

	t.Run("players cannot kick", func(t *testing.T) {
		qm.handle(alice, quizInbound{Type: msgKickPlayer, TargetID: "bob"})
		assert.Equal(t, "not_authorized", next[errorMessage](t, alice).Code)
	})

	t.Run("the kicked player is told and detached", func(t *testing.T) {
		pending[kickedMessage](alice)

		qm.handle(host, quizInbound{Type: msgKickPlayer, TargetID: "bob"})

		kicked := next[kickedMessage](t, bob)
		assert.Equal(t, code, kicked.Code)
		assert.Empty(t, bob.room())
		assert.Empty(t, pending[kickedMessage](alice))

		roster := pending[rosterMessage](alice)
		require.NotEmpty(t, roster)
		for _, p := range roster[len(roster)-1].Players {
			assert.NotEqual(t, "bob", p.UserID)
		}
	})

	t.Run("a kicked player may join elsewhere", func(t *testing.T) {
		other := newTestClient("other")
		second := createRoom(t, qm, other, "capitals")

		joinRoom(t, qm, second, bob)
	})
}

func TestQuizHostLeaves(t *testing.T) {
	t.Run("with migration the longest present player takes over", func(t *testing.T) {
		qm := newTestManager(t, testConfig())
		host, alice, bob := newTestClient("host"), newTestClient("alice"), newTestClient("bob")

		code := createRoom(t, qm, host, "capitals")
		joinRoom(t, qm, code, alice, bob)
		pending[any](bob)

		qm.handle(host, quizInbound{Type: msgLeaveRoom})

		info := next[sessionInfoMessage](t, alice)
		assert.True(t, info.IsHost)

		roster := next[rosterMessage](t, bob)
		assert.Equal(t, "alice", roster.HostID)
		assert.Empty(t, pending[sessionInfoMessage](bob))

		qm.handle(alice, quizInbound{Type: msgStartGame})
		next[questionMessage](t, bob)
	})

	t.Run("without migration the room closes", func(t *testing.T) {
		cfg := testConfig()
		cfg.migrateHost = false

		qm := newTestManager(t, cfg)
		host, alice := newTestClient("host"), newTestClient("alice")

		code := createRoom(t, qm, host, "capitals")
		joinRoom(t, qm, code, alice)

		qm.handle(host, quizInbound{Type: msgLeaveRoom})

		closed := next[roomClosedMessage](t, alice)
		assert.Equal(t, "host_left", closed.Reason)
		assert.Empty(t, alice.room())
		assert.Nil(t, qm.hub(code))

		_, err := qm.store.Get(code)
		assert.ErrorIs(t, err, room.ErrRoomNotFound)
	})
}

func TestQuizReconnect(t *testing.T) {
	t.Run("a player returning within the grace period keeps their place", func(t *testing.T) {
		qm := newTestManager(t, testConfig())
		host, alice := newTestClient("host"), newTestClient("alice")

		code := createRoom(t, qm, host, "capitals")
		joinRoom(t, qm, code, alice)

		qm.handle(host, quizInbound{Type: msgStartGame})
		qm.handle(alice, quizInbound{Type: msgSubmitAnswer, Answer: "Paris"})
		next[roundEndedMessage](t, host)

		qm.disconnect(alice)

		roster := pending[rosterMessage](host)
		require.NotEmpty(t, roster)
		assert.Equal(t, []string{"host"}, roster[len(roster)-1].Online)

		again := newTestClient("alice")
		qm.handle(again, quizInbound{Type: msgJoinRoom, Code: code, Nickname: "alice"})

		info := next[sessionInfoMessage](t, again)
		assert.True(t, info.Rejoined)
		assert.Equal(t, room.StateIntermission, info.State)

		p, ok := qm.hub(code).session.Player("alice")
		require.True(t, ok)
		assert.Equal(t, 1, p.Score)
		assert.Equal(t, again.id, p.ID)
	})

	t.Run("a player gone past the grace period is removed", func(t *testing.T) {
		cfg := testConfig()
		cfg.reconnectGrace = 10 * time.Millisecond

		qm := newTestManager(t, cfg)
		host, alice := newTestClient("host"), newTestClient("alice")

		code := createRoom(t, qm, host, "capitals")
		joinRoom(t, qm, code, alice)

		qm.disconnect(alice)

		assert.Eventually(t, func() bool {
			_, ok := qm.hub(code).session.Player("alice")
			return !ok
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("a room nobody is connected to is destroyed", func(t *testing.T) {
		cfg := testConfig()
		cfg.reconnectGrace = 10 * time.Millisecond

		qm := newTestManager(t, cfg)
		host, alice := newTestClient("host"), newTestClient("alice")

		code := createRoom(t, qm, host, "capitals")
		joinRoom(t, qm, code, alice)

		qm.disconnect(host)
		qm.disconnect(alice)

		assert.Eventually(t, func() bool {
			return qm.hub(code) == nil && qm.store.Len() == 0
		}, time.Second, 5*time.Millisecond)
	})

	staggered := func(t *testing.T) (*quizManager, string) {
		t.Helper()

		cfg := testConfig()
		cfg.reconnectGrace = 300 * time.Millisecond

		qm := newTestManager(t, cfg)
		host, bob := newTestClient("host"), newTestClient("bob")

		code := createRoom(t, qm, host, "capitals")
		joinRoom(t, qm, code, bob)

		qm.disconnect(host)
		time.Sleep(150 * time.Millisecond)
		qm.disconnect(bob)

		require.Eventually(t, func() bool {
			h := qm.hub(code)
			if h == nil {
				return true
			}
			_, ok := h.session.Player("host")
			return !ok
		}, time.Second, 5*time.Millisecond)
		require.NotNil(t, qm.hub(code), "bob is still inside his grace period")

		return qm, code
	}

	t.Run("a later disconnect keeps its own grace period", func(t *testing.T) {
		qm, code := staggered(t)

		again := newTestClient("bob")
		qm.handle(again, quizInbound{Type: msgJoinRoom, Code: code, Nickname: "bob"})

		info := next[sessionInfoMessage](t, again)
		assert.True(t, info.Rejoined)
		assert.True(t, info.IsHost)
	})

	t.Run("the room closes once the last grace period runs out", func(t *testing.T) {
		qm, code := staggered(t)

		assert.Eventually(t, func() bool {
			return qm.hub(code) == nil && qm.store.Len() == 0
		}, time.Second, 5*time.Millisecond)
	})
}

func TestQuizStaleRoundTimer(t *testing.T) {
	cfg := testConfig()
	cfg.roundTime = time.Hour

	qm := newTestManager(t, cfg)
	host, alice := newTestClient("host"), newTestClient("alice")

	code := createRoom(t, qm, host, "capitals")
	joinRoom(t, qm, code, alice)
	h := qm.hub(code)

	game := func() int {
		h.mu.Lock()
		defer h.mu.Unlock()

		return h.game
	}

	qm.handle(host, quizInbound{Type: msgStartGame})
	stale := game()

	qm.handle(host, quizInbound{Type: msgResetGame})
	qm.handle(host, quizInbound{Type: msgStartGame})
	pending[any](alice)

	qm.roundExpired(h, stale, 0)
	assert.Empty(t, pending[roundEndedMessage](alice), "a timer from the previous game ends nothing")
	assert.Equal(t, room.StatePlaying, h.session.State())

	qm.roundExpired(h, game(), 0)
	assert.Equal(t, 0, next[roundEndedMessage](t, alice).Round)
}

func TestQuizReaper(t *testing.T) {
	qm := newTestManager(t, testConfig())
	host := newTestClient("host")

	code := createRoom(t, qm, host, "capitals")

	qm.reap(time.Now().Add(-time.Hour))
	assert.NotNil(t, qm.hub(code), "recently active rooms survive")

	qm.reap(time.Now().Add(time.Hour))
	assert.Nil(t, qm.hub(code))
	assert.Equal(t, "idle", next[roomClosedMessage](t, host).Reason)
	assert.Zero(t, qm.store.Len())
}

func TestQuizSlowClientIsDropped(t *testing.T) {
	qm := newTestManager(t, testConfig())
	host := newTestClient("host")
	code := createRoom(t, qm, host, "capitals")

	slow := newQuizClient("conn-slow", "slow")
	joinRoom(t, qm, code, slow)

	for range cap(slow.send) + 1 {
		qm.handle(host, quizInbound{Type: msgResetGame})
	}

	h := qm.hub(code)
	h.mu.Lock()
	defer h.mu.Unlock()

	assert.False(t, h.clients[slow])
	assert.False(t, slow.trySend("late"))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "room_full", errorCode(room.ErrRoomFull))
	assert.Equal(t, "room_creation_failed", errorCode(fmt.Errorf("%w: %w", room.ErrRoomCreationFailed, errors.New("entropy"))))
	assert.Equal(t, "internal_error", errorCode(errors.New("boom")))

	msg := newErrorMessage(room.ErrSpotOccupied)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, room.ErrSpotOccupied.Error(), msg.Message)
}
