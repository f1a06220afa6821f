package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/labkit/pkg/identity"
	"github.com/platinummonkey/labkit/pkg/session"
)

// Command represents a shell command
type Command struct {
	Name        string
	Usage       string
	Description string
	MinArgs     int
	Run         func(ctx context.Context, args []string) error
}

// Shell drives a session manager from line commands
type Shell struct {
	Name     string
	Commands map[string]*Command

	hub      *identity.Hub
	manager  *session.Manager
	verifier identity.TokenVerifier
	routes   *session.Routes
	out      io.Writer

	// settleTimeout bounds how long a command waits for a resolution
	settleTimeout time.Duration
}

// NewShell creates a shell over a hub and the manager subscribed to it.
// verifier may be nil, which disables signin.
func NewShell(hub *identity.Hub, manager *session.Manager, verifier identity.TokenVerifier, routes *session.Routes, out io.Writer) *Shell {
	s := &Shell{
		Name:          "labkit-session",
		Commands:      make(map[string]*Command),
		hub:           hub,
		manager:       manager,
		verifier:      verifier,
		routes:        routes,
		out:           out,
		settleTimeout: 30 * time.Second,
	}

	s.add(&Command{Name: "signin", Usage: "signin <token>", Description: "Sign in with a bearer token", MinArgs: 1, Run: s.signIn})
	s.add(&Command{Name: "signin-as", Usage: "signin-as <subject> [email]", Description: "Sign in as a subject without a token", MinArgs: 1, Run: s.signInAs})
	s.add(&Command{Name: "signout", Usage: "signout", Description: "End the session", Run: s.signOut})
	s.add(&Command{Name: "refresh", Usage: "refresh", Description: "Re-resolve the current identity", Run: s.refresh})
	s.add(&Command{Name: "state", Usage: "state", Description: "Print the current snapshot", Run: s.state})
	s.add(&Command{Name: "route", Usage: "route <path>", Description: "Decide what happens when path is opened", MinArgs: 1, Run: s.route})
	s.add(&Command{Name: "can", Usage: "can <permission>", Description: "Check a permission", MinArgs: 1, Run: s.can})
	s.add(&Command{Name: "help", Usage: "help", Description: "List commands", Run: func(context.Context, []string) error { return s.usage() }})

	return s
}

func (s *Shell) add(cmd *Command) {
	s.Commands[cmd.Name] = cmd
}

// Execute runs one command line. Blank lines and # comments are ignored.
func (s *Shell) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	name := strings.ToLower(fields[0])
	if name == "-h" || name == "--help" {
		return s.usage()
	}

	cmd, ok := s.Commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", fields[0])
	}
	if len(fields)-1 < cmd.MinArgs {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	return cmd.Run(ctx, fields[1:])
}

// Run executes commands read from in until EOF, "exit" or ctx is done.
// Command errors are printed and do not stop the loop.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := s.Execute(ctx, line); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// usage prints the command list
func (s *Shell) usage() error {
	names := make([]string, 0, len(s.Commands))
	for name := range s.Commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(s.out, "Usage: %s <command> [args]\n\n", s.Name)
	fmt.Fprintf(s.out, "Commands:\n")
	for _, name := range names {
		cmd := s.Commands[name]
		fmt.Fprintf(s.out, "  %-28s %s\n", cmd.Usage, cmd.Description)
	}
	return nil
}

func (s *Shell) print(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
