// Package cli provides the line-oriented front end of the response rules
// tools: query and meta-command dispatch over a Session, with plain terminal
// I/O for piped input and script playback.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// CLI reads query lines and prints the chosen responses.
type CLI struct {
	Session   *Session
	In        io.Reader
	Out       io.Writer
	EchoInput bool   // echo each input line after the prompt (for script playback)
	lastCmd   string // for "again"/"g" repeat
}

// New creates a CLI over stdin and stdout.
func New(s *Session) *CLI {
	return &CLI{
		Session: s,
		In:      os.Stdin,
		Out:     os.Stdout,
	}
}

// Run prints a banner, then loops: prompt → input → dispatch → output.
func (c *CLI) Run() {
	st := c.Session.System.Stats()
	c.printSystem(fmt.Sprintf("%s: %d rule(s), %d response group(s). Type /help for commands.",
		st.Script, st.Rules, st.Groups))

	scanner := bufio.NewScanner(c.In)
	for {
		c.print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		// Skip comment lines (for script files).
		if strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		// "again" / "g" repeats the last query.
		lower := strings.ToLower(input)
		if lower == "again" || lower == "g" {
			if c.lastCmd == "" {
				c.printLine("Nothing to repeat.")
				continue
			}
			input = c.lastCmd
		} else if !strings.HasPrefix(input, "/") {
			c.lastCmd = input
		}

		out := c.Session.Exec(input)
		for _, line := range out.Lines {
			if out.System {
				c.printSystem(line)
			} else {
				c.printLine(line)
			}
		}
		if out.Quit {
			return
		}
	}
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	fmt.Fprintf(c.Out, "[%s]\n", text)
}
