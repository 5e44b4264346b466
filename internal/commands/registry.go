// Package commands maps bot slash commands to their handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Slash command names.
const (
	CommandAuthorize = "authorize"
	CommandRaidStats = "raid_stats"
)

// ErrUnknownCommand is returned when no handler is registered for a command.
var ErrUnknownCommand = errors.New("unknown command")

// Request identifies the invoking user.
type Request struct {
	Command  string `json:"-"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Field is a name/value pair rendered inside a response.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Response is the transport-neutral reply to a command.
type Response struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Ephemeral   bool    `json:"ephemeral"`
}

// Handler answers one command.
type Handler interface {
	Handle(ctx context.Context, req Request) (Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Registry is a fixed command table built at startup.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry copies handlers into a new Registry.
func NewRegistry(handlers map[string]Handler) *Registry {
	table := make(map[string]Handler, len(handlers))
	for name, h := range handlers {
		table[name] = h
	}
	return &Registry{handlers: table}
}

// Dispatch runs the handler registered for req.Command.
func (r *Registry) Dispatch(ctx context.Context, req Request) (Response, error) {
	h, ok := r.handlers[req.Command]
	if !ok {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
	return h.Handle(ctx, req)
}

// Names lists the registered commands in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Guard runs fn for an authorized user.
type Guard interface {
	Guard(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}

// Gated wraps h so it only runs for users with a stored authorization.
func Gated(guard Guard, h Handler) Handler {
	return HandlerFunc(func(ctx context.Context, req Request) (Response, error) {
		var resp Response
		err := guard.Guard(ctx, req.UserID, func(ctx context.Context) error {
			var err error
			resp, err = h.Handle(ctx, req)
			return err
		})
		return resp, err
	})
}
