/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package pack loads quiz packs and serves them read-only to game rooms.
package pack

import (
	"errors"
	"fmt"
	"slices"
)

// Mode selects how a room grades the answers given to a pack's questions.
type Mode string

const (
	// ModeStandard scores each player on their own answer.
	ModeStandard Mode = "standard"
	// ModeTeam pairs players; a pair scores only when both answers match.
	ModeTeam Mode = "team"
	// ModeDuplicate rewards answers nobody else in the room gave.
	ModeDuplicate Mode = "duplicate"
)

// Kind is the shape of a question.
type Kind string

const (
	KindMCQ      Kind = "mcq"
	KindFreeText Kind = "free_text"
)

type Question struct {
	ID            string   `yaml:"id" json:"id"`
	Text          string   `yaml:"text" json:"text"`
	Kind          Kind     `yaml:"kind" json:"kind"`
	Options       []string `yaml:"options,omitempty" json:"options,omitempty"`
	CorrectAnswer string   `yaml:"answer,omitempty" json:"-"`
}

// Graded reports whether the question has a single correct answer.
func (q Question) Graded() bool {
	return q.CorrectAnswer != ""
}

type TeamTemplate struct {
	Name string `yaml:"name" json:"name"`
}

// Pack is immutable once loaded.
type Pack struct {
	ID         string         `yaml:"id" json:"id"`
	Title      string         `yaml:"title" json:"title"`
	Category   string         `yaml:"category" json:"category"`
	Difficulty string         `yaml:"difficulty" json:"difficulty"`
	Mode       Mode           `yaml:"mode" json:"mode"`
	Teams      []TeamTemplate `yaml:"teams,omitempty" json:"teams,omitempty"`
	Questions  []Question     `yaml:"questions" json:"questions"`
}

// SupportsTeams reports whether players can pick team spots before a game.
func (p Pack) SupportsTeams() bool {
	return p.Mode == ModeTeam && len(p.Teams) > 0
}

// Summary is the metadata shown in pack listings.
type Summary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Mode       Mode   `json:"mode"`
	Questions  int    `json:"questions"`
}

func (p Pack) Summary() Summary {
	return Summary{
		ID:         p.ID,
		Title:      p.Title,
		Category:   p.Category,
		Difficulty: p.Difficulty,
		Mode:       p.Mode,
		Questions:  len(p.Questions),
	}
}

var ErrInvalidPack = errors.New("invalid pack")

func (p *Pack) validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPack)
	}

	if p.Mode == "" {
		p.Mode = ModeStandard
	}

	switch p.Mode {
	case ModeStandard, ModeDuplicate:
		if len(p.Teams) > 0 {
			return fmt.Errorf("%w: %s: teams are only allowed in team mode", ErrInvalidPack, p.ID)
		}
	case ModeTeam:
		if len(p.Teams) == 0 {
			return fmt.Errorf("%w: %s: team mode requires at least one team", ErrInvalidPack, p.ID)
		}
	default:
		return fmt.Errorf("%w: %s: unknown mode %q", ErrInvalidPack, p.ID, p.Mode)
	}

	seen := make(map[string]bool, len(p.Questions))
	for i := range p.Questions {
		q := &p.Questions[i]

		if q.ID == "" {
			q.ID = fmt.Sprintf("%s-%d", p.ID, i+1)
		}
		if seen[q.ID] {
			return fmt.Errorf("%w: %s: duplicate question id %q", ErrInvalidPack, p.ID, q.ID)
		}
		seen[q.ID] = true

		if q.Text == "" {
			return fmt.Errorf("%w: %s: question %q has no text", ErrInvalidPack, p.ID, q.ID)
		}

		if q.Kind == "" {
			if len(q.Options) > 0 {
				q.Kind = KindMCQ
			} else {
				q.Kind = KindFreeText
			}
		}

		switch q.Kind {
		case KindMCQ:
			if len(q.Options) < 2 {
				return fmt.Errorf("%w: %s: question %q needs at least two options", ErrInvalidPack, p.ID, q.ID)
			}
			if q.Graded() && !slices.Contains(q.Options, q.CorrectAnswer) {
				return fmt.Errorf("%w: %s: answer to %q is not one of its options", ErrInvalidPack, p.ID, q.ID)
			}
		case KindFreeText:
		default:
			return fmt.Errorf("%w: %s: question %q has unknown kind %q", ErrInvalidPack, p.ID, q.ID, q.Kind)
		}
	}

	return nil
}
