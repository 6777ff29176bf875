/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"sort"

	"github.com/Seednode/quizbox/games/quiz/pack"
)

// Start freezes the question list and opens the first round.
func (s *Session) Start(requesterID string) (QuestionPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requesterID != s.hostID {
		return QuestionPayload{}, ErrNotAuthorized
	}

	if s.state != StateWaiting {
		return QuestionPayload{}, ErrGameInProgress
	}

	n := len(s.pack.Questions)
	if s.settings.QuestionCount > 0 {
		n = min(s.settings.QuestionCount, n)
	}
	if n == 0 {
		return QuestionPayload{}, ErrNoQuestions
	}

	s.questions = append([]pack.Question(nil), s.pack.Questions[:n]...)
	s.index = 0
	s.state = StatePlaying

	if s.pack.Mode == pack.ModeTeam {
		s.pairTeamsLocked()
	}

	s.beginRoundLocked()

	return s.questionLocked(), nil
}

// beginRoundLocked clears per-round state, lets late joiners in and records
// which players must answer before the round may end early.
func (s *Session) beginRoundLocked() {
	s.submissions = make(map[string]Submission)
	s.outcomes = make(map[string]*Outcome)
	s.required = make(map[string]bool)
	s.resolved = false
	s.last = nil

	for _, p := range s.players {
		p.Status = StatusActive
		if p.IsHost {
			continue
		}

		if s.rules.RequireAll || s.rules.Online == nil || s.rules.Online(s.code, p.UserID) {
			s.required[p.UserID] = true
		}
	}

	s.touchLocked()
}

func (s *Session) questionLocked() QuestionPayload {
	return QuestionPayload{
		Index:    s.index,
		Total:    len(s.questions),
		Question: s.questions[s.index],
		Seconds:  int(s.settings.RoundTime.Seconds()),
	}
}

// Current returns the open question, for players reconnecting mid-round.
func (s *Session) Current() (QuestionPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return QuestionPayload{}, false
	}

	return s.questionLocked(), true
}

// Submit records a player's answer for the current round. It returns nil,
// without error, whenever the answer cannot count: no open round, unknown
// player, host, spectator, or a second submission for the same round.
func (s *Session) Submit(userID, answer string) *SubmitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return nil
	}

	p := s.playerLocked(userID)
	if p == nil || p.IsHost || p.Status != StatusActive {
		return nil
	}

	if _, done := s.submissions[userID]; done {
		return nil
	}

	sub := Submission{Text: Normalize(answer)}
	s.submissions[userID] = sub
	p.Status = StatusAnswered
	s.touchLocked()

	q := s.questions[s.index]
	res := &SubmitResult{UserID: userID}

	switch {
	case s.pack.Mode == pack.ModeDuplicate:
		s.outcomes[userID] = &Outcome{Answer: sub, Pending: true}
		res.Pending = true

	case s.pack.Mode == pack.ModeTeam && p.TeammateID != "":
		mateSub, ok := s.submissions[p.TeammateID]
		if !ok {
			s.outcomes[userID] = &Outcome{Answer: sub, Pending: true}
			res.Pending = true
			break
		}

		res.Correct = s.resolvePairLocked(q, p, sub, mateSub)

	default:
		res.Correct = gradeStandard(q, sub)
		s.outcomes[userID] = &Outcome{Answer: sub, Correct: res.Correct}
		if res.Correct {
			p.Score++
		}
	}

	res.AllAnswered = s.allAnsweredLocked()

	return res
}

func (s *Session) resolvePairLocked(q pack.Question, p *Player, sub, mateSub Submission) bool {
	correct := gradePair(q, sub, mateSub)

	s.outcomes[p.UserID] = &Outcome{Answer: sub, Correct: correct}
	s.outcomes[p.TeammateID] = &Outcome{Answer: mateSub, Correct: correct}

	if correct {
		p.Score++
		if mate := s.playerLocked(p.TeammateID); mate != nil {
			mate.Score++
		}
	}

	return correct
}

func (s *Session) progressLocked() (answered, required int) {
	for id := range s.required {
		required++
		if _, ok := s.submissions[id]; ok {
			answered++
		}
	}

	return answered, required
}

func (s *Session) allAnsweredLocked() bool {
	answered, required := s.progressLocked()

	return required > 0 && answered == required
}

// AllAnswered reports whether every player required this round has
// submitted.
func (s *Session) AllAnswered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == StatePlaying && s.allAnsweredLocked()
}

// Progress returns how many required players have answered this round.
func (s *Session) Progress() (answered, required int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progressLocked()
}

// EndRound resolves round number round exactly once. The round timer and the
// everyone-answered check both call it; whichever comes second gets the
// stored result back with ended set to false and changes nothing. A trigger
// for a round that is no longer current is ignored the same way.
func (s *Session) EndRound(requesterID string, round int) (result RoundResult, ended bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requesterID != s.hostID {
		return RoundResult{}, false, ErrNotAuthorized
	}

	if s.state != StatePlaying || round != s.index || s.resolved {
		if s.last != nil && s.last.Round == round {
			return *s.last, false, nil
		}

		return RoundResult{}, false, nil
	}

	q := s.questions[s.index]

	for _, p := range s.players {
		if p.IsHost || p.Status == StatusLateJoin {
			continue
		}

		if _, ok := s.submissions[p.UserID]; !ok {
			s.submissions[p.UserID] = noAnswer()
			s.outcomes[p.UserID] = &Outcome{Answer: noAnswer()}
		}
	}

	switch s.pack.Mode {
	case pack.ModeTeam:
		for _, p := range s.players {
			o, ok := s.outcomes[p.UserID]
			if !ok || !o.Pending {
				continue
			}

			mateSub, ok := s.submissions[p.TeammateID]
			if !ok {
				mateSub = noAnswer()
			}

			s.resolvePairLocked(q, p, o.Answer, mateSub)
		}

	case pack.ModeDuplicate:
		unique := gradeUnique(s.submissions)
		for id, correct := range unique {
			s.outcomes[id] = &Outcome{Answer: s.submissions[id], Correct: correct}
			if correct {
				if p := s.playerLocked(id); p != nil {
					p.Score++
				}
			}
		}
	}

	result = RoundResult{
		Round:             s.index,
		Answers:           s.answersLocked(),
		Scoreboard:        s.scoreboardLocked(),
		NextQuestionIndex: s.index + 1,
		Total:             len(s.questions),
	}

	if s.pack.Mode != pack.ModeDuplicate && q.Graded() {
		answer := q.CorrectAnswer
		result.CorrectAnswer = &answer
	}

	if result.NextQuestionIndex >= result.Total {
		s.state = StateFinished
		result.Finished = true
		result.Winner = winner(result.Scoreboard)
	} else {
		s.state = StateIntermission
	}

	s.resolved = true
	s.last = &result
	s.touchLocked()

	return result, true, nil
}

func (s *Session) answersLocked() []AnswerEntry {
	out := make([]AnswerEntry, 0, len(s.outcomes))
	for _, p := range s.players {
		o, ok := s.outcomes[p.UserID]
		if !ok {
			continue
		}

		out = append(out, AnswerEntry{
			ID:       p.UserID,
			Nickname: p.Nickname,
			Answer:   o.Answer,
			Correct:  o.Correct,
		})
	}

	return out
}

// scoreboardLocked lists every non-host player by descending score. Equal
// scores keep roster order.
func (s *Session) scoreboardLocked() []ScoreEntry {
	out := make([]ScoreEntry, 0, len(s.players))
	for _, p := range s.players {
		if p.IsHost {
			continue
		}

		out = append(out, ScoreEntry{
			ID:       p.UserID,
			Nickname: p.Nickname,
			Avatar:   p.Avatar,
			Score:    p.Score,
			TeamID:   p.TeamID,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	return out
}

func winner(board []ScoreEntry) *ScoreEntry {
	if len(board) == 0 {
		return nil
	}

	w := board[0]

	return &w
}

// Advance closes the intermission and opens the next round, or ends the game
// if no questions remain.
func (s *Session) Advance(requesterID string) (Advance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requesterID != s.hostID {
		return Advance{}, ErrNotAuthorized
	}

	if s.state != StateIntermission {
		return Advance{}, ErrNotInIntermission
	}

	if s.index+1 >= len(s.questions) {
		s.state = StateFinished
		board := s.scoreboardLocked()
		s.touchLocked()

		return Advance{GameOver: &GameOver{Scoreboard: board, Winner: winner(board)}}, nil
	}

	s.index++
	s.state = StatePlaying
	s.beginRoundLocked()

	q := s.questionLocked()

	return Advance{Question: &q}, nil
}
