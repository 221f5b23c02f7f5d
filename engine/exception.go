package engine

import (
	"fmt"
	"strings"
)

// Exception is a managed exception captured at the engine boundary.
type Exception struct {
	Type       string
	Message    string
	StackTrace string
	Method     string
}

// Throw creates an exception that managed Go code returns to raise it.
func Throw(typ, format string, args ...any) *Exception {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Exception{Type: typ, Message: msg}
}

func (e *Exception) Error() string {
	return e.Type + ": " + e.Message
}

// Diagnostic renders type, message and stack trace the way the host console
// prints unhandled script exceptions.
func (e *Exception) Diagnostic() string {
	var b strings.Builder
	b.WriteString(e.Type)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Method != "" {
		b.WriteString("\n  in ")
		b.WriteString(e.Method)
	}
	if e.StackTrace != "" {
		b.WriteByte('\n')
		b.WriteString(strings.TrimRight(e.StackTrace, "\n"))
	}
	return b.String()
}

// ExceptionHandler receives managed exceptions absorbed at the dispatch boundary.
type ExceptionHandler interface {
	HandleException(*Exception)
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler.
type ExceptionHandlerFunc func(*Exception)

func (f ExceptionHandlerFunc) HandleException(e *Exception) { f(e) }
