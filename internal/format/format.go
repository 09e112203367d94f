// Package format turns the output of an external formatter into text edits.
package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"pylon/internal/textedit"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var log = commonlog.GetLogger("pylon.format")

// ErrNoFormatter is returned when no formatter command is configured.
var ErrNoFormatter = errors.New("format: no formatter configured")

// Formatter formats a whole document. Path locates the document on disk and
// may be empty.
type Formatter interface {
	Format(ctx context.Context, path string, text string) (string, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(ctx context.Context, path string, text string) (string, error)

func (f FormatterFunc) Format(ctx context.Context, path string, text string) (string, error) {
	return f(ctx, path, text)
}

// Command runs an external formatter reading the document on stdin and
// writing the result to stdout, e.g. yapf or black -q -.
type Command []string

func (c Command) Format(ctx context.Context, path string, text string) (string, error) {
	if len(c) == 0 {
		return "", ErrNoFormatter
	}

	cmd := exec.CommandContext(ctx, c[0], c[1:]...)
	if path != "" {
		// Style files are looked up relative to the working directory.
		cmd.Dir = filepath.Dir(path)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", c[0], err, msg)
		}
		return "", fmt.Errorf("%s: %w", c[0], err)
	}
	return stdout.String(), nil
}

// Document formats text and returns the edits producing the formatted text.
func Document(ctx context.Context, f Formatter, path string, text string) ([]protocol.TextEdit, error) {
	before, after, err := run(ctx, f, path, text)
	if err != nil {
		return nil, err
	}
	return finish(text, restore(LineEdits(before, after), eol(text)))
}

// Range formats text but keeps only the edits within the lines touched by
// r. The range is widened to whole lines.
func Range(ctx context.Context, f Formatter, path string, text string, r protocol.Range) ([]protocol.TextEdit, error) {
	before, after, err := run(ctx, f, path, text)
	if err != nil {
		return nil, err
	}
	r = textedit.NormalizeRange(r)
	edits := WithinLines(LineEdits(before, after), r.Start.Line, r.End.Line+1)
	return finish(text, restore(edits, eol(text)))
}

// run formats text. Documents using lone carriage returns are handed to
// the formatter with newlines since formatters do not support them.
func run(ctx context.Context, f Formatter, path string, text string) (string, string, error) {
	if eol(text) == "\r" {
		text = strings.ReplaceAll(text, "\r", "\n")
	}
	out, err := f.Format(ctx, path, text)
	if err != nil {
		return "", "", fmt.Errorf("failed to format %s: %w", path, err)
	}
	return text, out, nil
}

// restore converts inserted newlines back to lone carriage returns. Line
// structure and therefore positions are the same in both forms.
func restore(edits []protocol.TextEdit, eol string) []protocol.TextEdit {
	if eol != "\r" {
		return edits
	}
	for i := range edits {
		edits[i].NewText = strings.ReplaceAll(edits[i].NewText, "\n", "\r")
	}
	return edits
}

// finish checks that edits form a valid batch for text before they are sent.
func finish(text string, edits []protocol.TextEdit) ([]protocol.TextEdit, error) {
	if err := textedit.Validate(text, edits); err != nil {
		log.Errorf("formatter produced an invalid edit batch: %v", err)
		return nil, err
	}
	return edits, nil
}
