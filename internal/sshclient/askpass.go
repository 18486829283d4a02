package sshclient

import (
	"bytes"
	"io"
)

// promptTail bounds how much recent output is kept while looking for the
// password prompt.
const promptTail = 256

var passwordPrompt = []byte("password:")

// promptResponder copies ssh output to out and, the first time a password
// prompt shows up, types the password into the terminal once.
type promptResponder struct {
	out      io.Writer
	term     io.Writer
	password string
	answered bool
	tail     []byte
}

func newPromptResponder(out, term io.Writer, password string) *promptResponder {
	return &promptResponder{out: out, term: term, password: password}
}

func (r *promptResponder) Write(p []byte) (int, error) {
	n, err := r.out.Write(p)
	if err != nil {
		return n, err
	}
	if r.answered {
		return n, nil
	}
	r.tail = append(r.tail, p...)
	if len(r.tail) > promptTail {
		r.tail = r.tail[len(r.tail)-promptTail:]
	}
	if bytes.Contains(bytes.ToLower(r.tail), passwordPrompt) {
		r.answered = true
		r.tail = nil
		if _, err := io.WriteString(r.term, r.password+"\n"); err != nil {
			return n, err
		}
	}
	return n, nil
}
