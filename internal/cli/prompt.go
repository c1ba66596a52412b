package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mrlokans/librarysync/internal/storagesource"
)

// DefaultUnlockAttempts is how often a wrong password may be retried.
const DefaultUnlockAttempts = 3

// TerminalPrompter asks for the password of an encrypted storage source.
// An empty answer cancels.
type TerminalPrompter struct {
	in       io.Reader
	out      io.Writer
	reader   *bufio.Reader
	Attempts int
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out, Attempts: DefaultUnlockAttempts}
}

func (p *TerminalPrompter) Prompt(ctx context.Context, description string, props storagesource.UnlockProps) (*storagesource.UnlockAction, error) {
	if len(props.EncryptedData) == 0 {
		return nil, nil
	}

	fmt.Fprintln(p.out, description)
	if props.Action != "" {
		fmt.Fprintln(p.out, props.Action)
	}

	for attempt := 0; attempt < max(p.Attempts, 1); attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		secret, err := p.ReadSecret(fmt.Sprintf("Password for %s: ", props.SourceName))
		if errors.Is(err, io.EOF) || (err == nil && secret == "") {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		action, err := storagesource.Unlock(props.EncryptedData, secret)
		if err == nil {
			return action, nil
		}
		if !storagesource.IsAuthenticationError(err) {
			return nil, err
		}
		fmt.Fprintln(p.out, "Wrong password.")
	}
	return nil, nil
}

// ReadSecret prints label and reads one line, without echo on a terminal.
func (p *TerminalPrompter) ReadSecret(label string) (string, error) {
	fmt.Fprint(p.out, label)

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		return string(secret), err
	}

	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
