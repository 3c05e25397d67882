// SPDX-License-Identifier: MPL-2.0

package enclog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
)

func mustKey(t *testing.T) *fernet.Key {
	t.Helper()
	key, err := GenKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func mustEncrypt(t *testing.T, key *fernet.Key, msg string) string {
	t.Helper()
	token, err := Encrypt(key, msg)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestDecryptLine(t *testing.T) {
	t.Parallel()

	key := mustKey(t)
	line := "INFO - " + mustEncrypt(t, key, "first") + " and " + mustEncrypt(t, key, "second")

	got, err := DecryptLine(key, line)
	if err != nil {
		t.Fatalf("DecryptLine failed: %v", err)
	}
	if got != "INFO - first and second" {
		t.Errorf("unexpected line: %q", got)
	}

	// Lines without tokens pass through unchanged.
	got, err = DecryptLine(key, "plain line")
	if err != nil {
		t.Fatal(err)
	}
	if got != "plain line" {
		t.Errorf("unexpected line: %q", got)
	}
}

func TestDecryptLine_WrongKey(t *testing.T) {
	t.Parallel()

	key := mustKey(t)
	line := "INFO - " + mustEncrypt(t, key, "secret")

	if _, err := DecryptLine(mustKey(t), line); !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	key := mustKey(t)
	var in bytes.Buffer
	fmt.Fprintln(&in, "INFO - "+mustEncrypt(t, key, "one"))
	fmt.Fprintln(&in, "plain line")
	fmt.Fprintln(&in, "WARN - "+mustEncrypt(t, key, "two"))

	var out bytes.Buffer
	if err := Open(&in, key, &out); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	want := "INFO - one\nplain line\nWARN - two\n"
	if out.String() != want {
		t.Errorf("unexpected output:\ngot:  %q\nwant: %q", out.String(), want)
	}
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	key := mustKey(t)
	path := filepath.Join(t.TempDir(), "app.log")
	content := "INFO - " + mustEncrypt(t, key, "from file") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := OpenFile(path, key, &out); err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if out.String() != "INFO - from file\n" {
		t.Errorf("unexpected output: %q", out.String())
	}
}

// syncBuffer lets the tail goroutine and the test share output safely.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTail(t *testing.T) {
	t.Parallel()

	key := mustKey(t)
	path := filepath.Join(t.TempDir(), "app.log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	fmt.Fprintln(f, "INFO - "+mustEncrypt(t, key, "existing"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- Tail(ctx, path, key, out, 10*time.Millisecond)
	}()

	waitForOutput(t, out, "existing")

	fmt.Fprintln(f, "INFO - "+mustEncrypt(t, key, "appended"))
	waitForOutput(t, out, "appended")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	want := "INFO - existing\nINFO - appended\n"
	if out.String() != want {
		t.Errorf("unexpected output:\ngot:  %q\nwant: %q", out.String(), want)
	}
}

func waitForOutput(t *testing.T, out *syncBuffer, substr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), substr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output %q", substr, out.String())
}
