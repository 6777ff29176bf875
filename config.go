/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	answerPolicyOnline = "online"
	answerPolicyAll    = "all"
)

type Config struct {
	answerPolicy   string
	bind           string
	maxPlayers     int
	messageBurst   int
	messageRate    float64
	migrateHost    bool
	packsDir       string
	port           int
	prefix         string
	profile        bool
	questionCount  int
	reconnectGrace time.Duration
	roundTime      time.Duration
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.answerPolicy {
	case answerPolicyOnline, answerPolicyAll:
	default:
		return fmt.Errorf("invalid answer policy (must be %q or %q): %q", answerPolicyOnline, answerPolicyAll, c.answerPolicy)
	}
	if c.maxPlayers < 2 {
		return fmt.Errorf("invalid max players (must be at least 2): %d", c.maxPlayers)
	}
	if c.questionCount < 0 {
		return fmt.Errorf("invalid question count (must not be negative): %d", c.questionCount)
	}
	if c.roundTime < 0 || c.reconnectGrace < 0 || c.sessionTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	if c.messageRate <= 0 || c.messageBurst < 1 {
		return errors.New("--message-rate must be positive and --message-burst at least 1")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizbox",
		Short:         "A host-driven multiplayer quiz, served over WebSockets from a single binary.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.answerPolicy, "answer-policy", answerPolicyOnline, "players required before a round ends early: online or all (env: QUIZBOX_ANSWER_POLICY)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZBOX_BIND)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 15, "maximum players per room, host included (env: QUIZBOX_MAX_PLAYERS)")
	fs.IntVar(&cfg.messageBurst, "message-burst", 10, "inbound messages a connection may send at once (env: QUIZBOX_MESSAGE_BURST)")
	fs.Float64Var(&cfg.messageRate, "message-rate", 5, "sustained inbound messages per second per connection (env: QUIZBOX_MESSAGE_RATE)")
	fs.BoolVar(&cfg.migrateHost, "migrate-host", true, "promote another player when the host leaves, instead of closing the room (env: QUIZBOX_MIGRATE_HOST)")
	fs.StringVar(&cfg.packsDir, "packs-dir", "", "directory of additional question packs in yaml (env: QUIZBOX_PACKS_DIR)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIZBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIZBOX_PROFILE)")
	fs.IntVar(&cfg.questionCount, "question-count", 10, "default questions per game, 0 for the whole pack (env: QUIZBOX_QUESTION_COUNT)")
	fs.DurationVar(&cfg.reconnectGrace, "reconnect-grace", 30*time.Second, "time a disconnected player keeps their place (env: QUIZBOX_RECONNECT_GRACE)")
	fs.DurationVar(&cfg.roundTime, "round-time", 30*time.Second, "default time limit per question, 0 for none (env: QUIZBOX_ROUND_TIME)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are closed (env: QUIZBOX_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIZBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIZBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIZBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIZBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
