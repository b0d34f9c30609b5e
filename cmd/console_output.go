package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/klajdicaushi/lajournal-deploy/pkg/deploy"
)

// ConsoleWriter renders the runner's JSON events as one column per step:
//
//	sync-deps      | $ uv sync --frozen
//	collect-static | Error: failed after 2s (exit status 5)
//	               |     <error details>
//
// Events outside a step leave the column empty.
type ConsoleWriter struct {
	out      io.Writer
	colorize colorstring.Colorize
	width    int
	lock     sync.Mutex
}

func NewConsoleWriter(out io.Writer, noColor bool) *ConsoleWriter {
	width := 0
	for _, name := range deploy.Order {
		if len(name) > width {
			width = len(name)
		}
	}

	return &ConsoleWriter{
		out:   out,
		width: width,
		colorize: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: noColor,
			Reset:   true,
		},
	}
}

func levelColor(level interface{}) string {
	switch level {
	case "fatal", "panic", "error":
		return "[red]"
	case "warn":
		return "[yellow]"
	case "debug", "trace":
		return "[blue]"
	default:
		return "[green]"
	}
}

// internal fields that already shape the line and aren't repeated in debug output
var layoutFields = map[string]bool{
	"level":   true,
	"message": true,
	"step":    true,
	"command": true,
	"error":   true,
}

func (w *ConsoleWriter) Write(p []byte) (int, error) {
	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		return 0, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	step, _ := evt["step"].(string)
	gutter := fmt.Sprintf("%-*s | ", w.width, step)
	blank := strings.Repeat(" ", w.width) + " | "
	color := levelColor(evt["level"])

	msg, _ := evt["message"].(string)
	if path, ok := evt["path"].(string); ok {
		if relPath, err := filepath.Rel(".", path); err == nil {
			msg = strings.ReplaceAll(msg, path, relPath)
		}
	}

	var line strings.Builder
	line.WriteString("[bold]" + gutter + "[reset]" + color)
	switch {
	case evt["command"] == true:
		line.WriteString("$ " + msg)
	case evt["level"] == "error" || evt["level"] == "fatal":
		line.WriteString("Error: " + msg)
		if status, ok := evt["status"]; ok {
			fmt.Fprintf(&line, " (exit status %v)", status)
		}
	default:
		line.WriteString(msg)
	}
	line.WriteString("[reset]\n")

	if details, ok := evt["error"]; ok {
		for _, detail := range strings.Split(strings.TrimRight(fmt.Sprint(details), "\n"), "\n") {
			line.WriteString("[bold]" + blank + "[reset][red]    " + detail + "[reset]\n")
		}
	}

	if os.Getenv("DEPLOY_DEBUG") != "" {
		names := make([]string, 0, len(evt))
		for name := range evt {
			if !layoutFields[name] {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		for _, name := range names {
			fmt.Fprintf(&line, "%s[dark_gray]    %s=%v[reset]\n", blank, name, evt[name])
		}
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if _, err := io.WriteString(w.out, w.colorize.Color(line.String())); err != nil {
		return 0, err
	}

	return len(p), nil
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv("DEPLOY_DEBUG") != "")
	}
}
