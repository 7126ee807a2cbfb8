// Package cli implements a colored text handler suitable for command-line
// interfaces.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	color2 "github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

// Default handler outputting to stderr.
var Default = New(os.Stderr, true)

var bold = color2.New(color2.Bold)

// Strings mapping.
var Strings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  " INFO",
	log.WarnLevel:  " WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

// Handler implementation.
type Handler struct {
	mu      sync.Mutex
	Writer  io.Writer
	Padding int
}

// New handler.
func New(w io.Writer, useColors bool) *Handler {
	if f, ok := w.(*os.File); ok && useColors {
		return &Handler{Writer: colorable.NewColorable(f), Padding: 2}
	}
	return &Handler{Writer: colorable.NewNonColorable(w), Padding: 2}
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	color := cli.Colors[e.Level]
	level := Strings[e.Level]
	names := e.Fields.Names()
	sort.Strings(names)

	h.mu.Lock()
	defer h.mu.Unlock()

	color.Fprintf(h.Writer, "%s: [%s] %-25s", bold.Sprintf("%*s", h.Padding+1, level), time.Now().Format(time.StampMilli), e.Message)

	for _, name := range names {
		if name == "error" {
			continue
		}
		fmt.Fprintf(h.Writer, " %s=%v", color.Sprint(name), e.Fields.Get(name))
	}

	fmt.Fprintln(h.Writer)

	// Entries built with WithField("error", err) keep the error value, the ones
	// built with WithError only carry its message.
	if err, ok := e.Fields.Get("error").(error); ok {
		fmt.Fprintf(h.Writer, "%s%s\n", color.Sprint("  error: "), err.Error())
		for _, detail := range details(err) {
			fmt.Fprintf(h.Writer, "    %v\n", detail)
		}
	} else if v := e.Fields.Get("error"); v != nil {
		fmt.Fprintf(h.Writer, "%s%v\n", color.Sprint("  error: "), v)
	}

	return nil
}

// WithError attaches err to entry like entry.WithError, and adds the key/value
// pairs attached to err with errors.WithDetails as fields, which apex/log
// does not read on its own.
func WithError(entry log.Interface, err error) *log.Entry {
	fields := log.Fields{}
	kv := errors.GetDetails(err)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return entry.WithFields(fields).WithError(err)
}

// details flattens the key/value pairs attached with errors.WithDetails.
func details(err error) []string {
	kv := errors.GetDetails(err)
	out := make([]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
	}
	return out
}
