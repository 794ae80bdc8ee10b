// Package rcon sends console commands to the game server over the Source
// RCON protocol. A fresh connection is dialed per command; the handshake is
// cheap and reconnecting every call survives game server restarts without a
// reconnect loop on our side.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gorcon "github.com/gorcon/rcon"
)

// ErrDisabled is returned by the disabled executor. Callers treat it as
// "no remote console configured", not as a failure.
var ErrDisabled = errors.New("rcon: executor disabled")

const (
	defaultDialTimeout = 5 * time.Second
	defaultDeadline    = 10 * time.Second
)

// Executor runs one console command on the game server and returns its raw
// output. Implementations must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Config holds the connection settings for the game server console.
type Config struct {
	// Address is the host:port of the RCON listener. Empty disables the
	// executor.
	Address  string
	Password string

	// DialTimeout bounds the TCP connect plus auth handshake.
	DialTimeout time.Duration
	// Deadline bounds each command round trip.
	Deadline time.Duration
}

// New returns a Client when an address is configured and the disabled
// executor otherwise.
func New(cfg Config) Executor {
	if cfg.Address == "" {
		return Disabled{}
	}
	return NewClient(cfg)
}

// Client is the RCON-backed Executor.
type Client struct {
	address     string
	password    string
	dialTimeout time.Duration
	deadline    time.Duration
}

func NewClient(cfg Config) *Client {
	c := &Client{
		address:     cfg.Address,
		password:    cfg.Password,
		dialTimeout: cfg.DialTimeout,
		deadline:    cfg.Deadline,
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = defaultDialTimeout
	}
	if c.deadline <= 0 {
		c.deadline = defaultDeadline
	}
	return c
}

// Execute dials the server, authenticates, runs the command and closes the
// connection. The context can only shorten the configured deadline; the
// wire timeouts themselves are enforced through socket deadlines.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	deadline := c.deadline
	if t, ok := ctx.Deadline(); ok {
		if remain := time.Until(t); remain < deadline {
			deadline = remain
		}
	}
	if deadline <= 0 {
		return "", context.DeadlineExceeded
	}
	dial := c.dialTimeout
	if dial > deadline {
		dial = deadline
	}

	conn, err := gorcon.Dial(c.address, c.password,
		gorcon.SetDialTimeout(dial),
		gorcon.SetDeadline(deadline),
	)
	if err != nil {
		return "", fmt.Errorf("rcon: dial %s: %w", c.address, err)
	}
	defer conn.Close()

	out, err := conn.Execute(command)
	if err != nil {
		return "", fmt.Errorf("rcon: execute %q: %w", command, err)
	}
	return strings.TrimSpace(out), nil
}

// Disabled is the executor used when no RCON address is configured.
type Disabled struct{}

func (Disabled) Execute(context.Context, string) (string, error) {
	return "", ErrDisabled
}

// Commands holds the console command templates. A {player} placeholder is
// replaced with the target name. Empty fields fall back to the vanilla
// Minecraft console syntax.
type Commands struct {
	Add    string
	Remove string
	List   string
}

// DefaultCommands matches a vanilla Minecraft server console.
func DefaultCommands() Commands {
	return Commands{
		Add:    "whitelist add {player}",
		Remove: "whitelist remove {player}",
		List:   "whitelist list",
	}
}

// Normalize fills empty templates with the vanilla defaults.
func (c Commands) Normalize() Commands {
	def := DefaultCommands()
	if c.Add == "" {
		c.Add = def.Add
	}
	if c.Remove == "" {
		c.Remove = def.Remove
	}
	if c.List == "" {
		c.List = def.List
	}
	return c
}

func (c Commands) AddPlayer(player string) string {
	return strings.ReplaceAll(c.Add, "{player}", player)
}

func (c Commands) RemovePlayer(player string) string {
	return strings.ReplaceAll(c.Remove, "{player}", player)
}

func (c Commands) ListPlayers() string {
	return c.List
}
