// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handler

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Confirmer gates processing of an event on an operator decision.
// proceed reports whether the event should be processed; abort reports a
// request to shut the Handler down entirely (Ctrl-C).
type Confirmer interface {
	Confirm(subject, repository string, number int) (proceed, abort bool)
}

// AutoConfirmer always proceeds without prompting, used when
// --auto-confirm is set.
type AutoConfirmer struct{}

func (AutoConfirmer) Confirm(string, string, int) (bool, bool) { return true, false }

// TerminalConfirmer reads a single keystroke from stdin: Enter confirms,
// 's' skips (acking without processing), and Ctrl-C aborts. Unknown keys
// re-prompt.
type TerminalConfirmer struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalConfirmer returns a confirmer reading from stdin and writing
// prompts to stdout.
func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{In: os.Stdin, Out: os.Stdout}
}

func (c *TerminalConfirmer) Confirm(subject, repository string, number int) (proceed, abort bool) {
	fmt.Fprintf(c.Out, "\n%s %s#%d — process? [Enter=yes, s=skip, Ctrl-C=abort] ", subject, repository, number)

	fd := int(c.In.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		// No controlling terminal (e.g. running under a test harness or a
		// service manager): fail open rather than hang forever waiting for
		// a keystroke that will never arrive.
		fmt.Fprintln(c.Out, "(no tty, proceeding)")
		return true, false
	}
	defer term.Restore(fd, oldState) //nolint:errcheck

	buf := make([]byte, 1)
	for {
		if _, err := c.In.Read(buf); err != nil {
			return false, true
		}
		switch buf[0] {
		case '\r', '\n':
			fmt.Fprintln(c.Out)
			return true, false
		case 's', 'S':
			fmt.Fprintln(c.Out, "skip")
			return false, false
		case 3: // Ctrl-C
			fmt.Fprintln(c.Out)
			return false, true
		default:
			fmt.Fprint(c.Out, "\r\nunrecognized key, try again [Enter=yes, s=skip, Ctrl-C=abort] ")
		}
	}
}
