// Package identity resolves the process-lifetime identity attributes: a
// persistent anonymous user id and a label for the terminal the host runs in.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/term"
)

const (
	userIDFile = "user_id"
	lockFile   = "user_id.lock"
)

// NonInteractive labels a host with no terminal on stdin.
const NonInteractive = "non-interactive"

// UserID returns the anonymous id stored in stateDir, creating it on first
// use. Concurrent first runs agree on one id: the file is re-read after the
// lock is held. On I/O failure a fresh in-memory id is returned with the error
// so the caller can log and continue.
func UserID(stateDir string) (string, error) {
	path := filepath.Join(stateDir, userIDFile)
	if id, ok := readID(path); ok {
		return id, nil
	}

	fresh := newID()
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fresh, fmt.Errorf("creating state dir: %w", err)
	}

	lock := flock.New(filepath.Join(stateDir, lockFile))
	if err := lock.Lock(); err != nil {
		return fresh, fmt.Errorf("locking user id: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if id, ok := readID(path); ok {
		return id, nil
	}
	if err := os.WriteFile(path, []byte(fresh+"\n"), 0600); err != nil {
		return fresh, fmt.Errorf("writing user id: %w", err)
	}
	return fresh, nil
}

func readID(path string) (string, bool) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is under the configured state dir
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(string(data))
	if !validID(id) {
		return "", false
	}
	return id, true
}

func newID() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return hex.EncodeToString(sum[:])
}

func validID(id string) bool {
	if len(id) != 64 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// envMarkers map an environment variable to the terminal it identifies, in
// priority order.
var envMarkers = []struct {
	vars  []string
	label string
}{
	{[]string{"CURSOR_TRACE_ID"}, "cursor"},
	{[]string{"VSCODE_GIT_IPC_HANDLE", "VSCODE_PID"}, "vscode"},
	{[]string{"ZED_TERM"}, "zed"},
	{[]string{"WT_SESSION"}, "windows-terminal"},
	{[]string{"KITTY_WINDOW_ID"}, "kitty"},
	{[]string{"ALACRITTY_LOG", "ALACRITTY_SOCKET"}, "alacritty"},
	{[]string{"WEZTERM_PANE"}, "wezterm"},
	{[]string{"TMUX"}, "tmux"},
	{[]string{"STY"}, "screen"},
}

// TerminalType labels the terminal from the environment. An empty result
// means no label applies and the attribute is omitted.
func TerminalType(env func(string) string, isTTY bool) string {
	if tp := strings.TrimSpace(env("TERM_PROGRAM")); tp != "" {
		return tp
	}
	for _, m := range envMarkers {
		for _, v := range m.vars {
			if env(v) != "" {
				return m.label
			}
		}
	}
	if t := env("TERM"); t != "" && t != "dumb" {
		return t
	}
	if !isTTY {
		return NonInteractive
	}
	return ""
}

// DetectTerminal runs TerminalType against the process environment and stdin.
func DetectTerminal() string {
	return TerminalType(os.Getenv, term.IsTerminal(int(os.Stdin.Fd())))
}
