// ABOUTME: Command processor mapping the three memory bank phrases onto bank calls.
// ABOUTME: Commands are matched case-insensitively and never execute tools themselves.

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/membank/internal/memorybank"
)

var (
	// ErrMissingArguments is returned when initialize lacks a name and description.
	ErrMissingArguments = errors.New("Missing required arguments: project_name and project_description")

	// ErrBankNotFound is returned when update or follow finds no bank.
	ErrBankNotFound = errors.New("Memory Bank not found or empty")

	// ErrUnknownCommand is returned for any other command string.
	ErrUnknownCommand = errors.New("Unknown command")
)

// Command phrases.
const (
	Initialize = "initialize memory bank"
	Update     = "update memory bank"
	Follow     = "follow memory bank"
)

// Bank is the subset of the memory bank the processor needs.
type Bank interface {
	Initialize(ctx context.Context, info memorybank.ProjectInfo) ([]memorybank.File, error)
	ReadAll(ctx context.Context) ([]memorybank.File, error)
}

// Response is the result of a successful command.
type Response struct {
	Message string            `json:"message"`
	Files   []memorybank.File `json:"files"`
}

type handler func(ctx context.Context, args []string) (*Response, error)

// Processor dispatches command phrases.
type Processor struct {
	bank     Bank
	logger   *slog.Logger
	handlers map[string]handler
}

// NewProcessor creates a processor backed by bank.
func NewProcessor(bank Bank, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		bank:   bank,
		logger: logger.With("component", "commands"),
	}
	p.handlers = map[string]handler{
		Initialize: p.initialize,
		Update:     p.readFor("Memory Bank files ready for update"),
		Follow:     p.readFor("Memory Bank files loaded"),
	}
	return p
}

// Commands returns the recognized phrases.
func Commands() []string {
	return []string{Initialize, Update, Follow}
}

// Process runs command with positional args.
func (p *Processor) Process(ctx context.Context, command string, args []string) (*Response, error) {
	h, ok := p.handlers[normalize(command)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
	p.logger.Debug("processing command", "command", command, "args", len(args))
	return h(ctx, args)
}

// normalize lowercases and collapses internal whitespace.
func normalize(command string) string {
	return strings.Join(strings.Fields(strings.ToLower(command)), " ")
}

// initialize expects args[0] = project name, args[1] = description and any
// further args as technologies.
func (p *Processor) initialize(ctx context.Context, args []string) (*Response, error) {
	if len(args) < 2 {
		return nil, ErrMissingArguments
	}

	files, err := p.bank.Initialize(ctx, memorybank.ProjectInfo{
		Name:         args[0],
		Description:  args[1],
		Technologies: args[2:],
	})
	if err != nil {
		return nil, err
	}
	return &Response{Message: "Memory Bank initialized successfully", Files: files}, nil
}

func (p *Processor) readFor(message string) handler {
	return func(ctx context.Context, _ []string) (*Response, error) {
		files, err := p.bank.ReadAll(ctx)
		if errors.Is(err, memorybank.ErrNotFound) || (err == nil && len(files) == 0) {
			return nil, ErrBankNotFound
		}
		if err != nil {
			return nil, err
		}
		return &Response{Message: message, Files: files}, nil
	}
}
