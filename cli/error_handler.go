package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/causes/errors"
)

// ErrorHandler turns errors into user-facing messages with a hint.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints err and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	out := h.Out

	switch errors.GetCode(err) {
	case errors.ErrCodeConnectivity:
		fmt.Fprintf(out, "❌ %s\n", errors.Message(err))
		fmt.Fprintf(out, "Is the daemon running? Start it with 'causes serve' or set source.transport: file.\n")

	case errors.ErrCodePermissionDenied:
		fmt.Fprintf(out, "❌ %s\n", errors.Message(err))
		fmt.Fprintf(out, "Check source.token in causes.yml against the daemon's token.\n")

	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(out, "❌ Configuration not found. Create causes.yml or pass --config.\n")

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(out, "❌ Invalid configuration: %s\n", errors.Message(err))

	case errors.ErrCodeInvalidQuery:
		fmt.Fprintf(out, "❌ Invalid query: %s\n", errors.Message(err))

	case errors.ErrCodeNotFound:
		fmt.Fprintf(out, "❌ %s\n", errors.Message(err))

	default:
		fmt.Fprintf(out, "❌ Error: %v\n", err)
	}

	if h.Verbose {
		if e, ok := err.(*errors.Error); ok {
			fmt.Fprintf(out, "\nError details:\n%s\n", e.ToJSON())
		}
	}
	return err
}
