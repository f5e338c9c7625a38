package loader

// breakChars are always returned as single-character tokens.
const breakChars = "{}()'"

// scriptEntry is one text buffer on the script stack.
type scriptEntry struct {
	name   string
	buf    string
	pos    int
	tokens int
}

// Tokenizer turns a stack of text buffers into tokens. The top of the stack
// is the buffer being read; #include pushes a new top.
type Tokenizer struct {
	stack    []*scriptEntry
	token    string
	unget    bool
	included map[string]bool
}

// NewTokenizer returns an empty tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{included: map[string]bool{}}
}

// Push makes text the current buffer.
func (t *Tokenizer) Push(name, text string) {
	t.stack = append(t.stack, &scriptEntry{name: name, buf: text})
	t.unget = false
}

// Pop discards the current buffer; its parent resumes where it left off.
func (t *Tokenizer) Pop() {
	if len(t.stack) == 0 {
		return
	}
	t.stack = t.stack[:len(t.stack)-1]
	t.unget = false
}

// Depth returns the number of buffers on the stack.
func (t *Tokenizer) Depth() int {
	return len(t.stack)
}

// File returns the name of the current buffer.
func (t *Tokenizer) File() string {
	if top := t.top(); top != nil {
		return top.name
	}
	return ""
}

// Offset returns the byte offset of the cursor in the current buffer.
func (t *Tokenizer) Offset() int {
	if top := t.top(); top != nil {
		return top.pos
	}
	return 0
}

// MarkIncluded records name and reports whether it was new.
func (t *Tokenizer) MarkIncluded(name string) bool {
	if t.included[name] {
		return false
	}
	t.included[name] = true
	return true
}

// Token returns the most recently parsed token.
func (t *Tokenizer) Token() string {
	return t.token
}

// Unget pushes the current token back; the next ParseToken returns it again.
func (t *Tokenizer) Unget() {
	t.unget = true
}

// ParseToken advances the current buffer and returns the next token. It
// returns false only when the current buffer is exhausted.
func (t *Tokenizer) ParseToken() (string, bool) {
	if t.unget {
		t.unget = false
		return t.token, true
	}
	top := t.top()
	if top == nil {
		t.token = ""
		return "", false
	}

	tok, ok := nextToken(top)
	t.token = tok
	if ok {
		top.tokens++
	}
	return tok, ok
}

// TokenWaiting reports whether another token follows on the current line,
// ignoring a trailing // comment. It never consumes input.
func (t *Tokenizer) TokenWaiting() bool {
	top := t.top()
	if top == nil {
		return false
	}
	buf := top.buf
	for p := top.pos; p < len(buf) && buf[p] != '\n'; p++ {
		if buf[p] == '/' && p+1 < len(buf) && buf[p+1] == '/' {
			return false
		}
		if !isSpace(buf[p]) {
			return true
		}
	}
	return false
}

func (t *Tokenizer) top() *scriptEntry {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// nextToken scans one token from e, skipping whitespace and // comments.
func nextToken(e *scriptEntry) (string, bool) {
	buf := e.buf
	for {
		for e.pos < len(buf) && isSpace(buf[e.pos]) {
			e.pos++
		}
		if e.pos >= len(buf) {
			return "", false
		}
		if buf[e.pos] == '/' && e.pos+1 < len(buf) && buf[e.pos+1] == '/' {
			for e.pos < len(buf) && buf[e.pos] != '\n' {
				e.pos++
			}
			continue
		}
		break
	}

	c := buf[e.pos]
	switch {
	case c == '"':
		e.pos++
		start := e.pos
		for e.pos < len(buf) && buf[e.pos] != '"' {
			e.pos++
		}
		tok := buf[start:e.pos]
		if e.pos < len(buf) {
			e.pos++ // closing quote
		}
		return tok, true

	case isBreak(c):
		e.pos++
		return string(c), true
	}

	start := e.pos
	for e.pos < len(buf) && !isSpace(buf[e.pos]) && !isBreak(buf[e.pos]) && buf[e.pos] != '"' {
		e.pos++
	}
	return buf[start:e.pos], true
}

func isSpace(c byte) bool {
	return c <= ' '
}

func isBreak(c byte) bool {
	for i := 0; i < len(breakChars); i++ {
		if breakChars[i] == c {
			return true
		}
	}
	return false
}
