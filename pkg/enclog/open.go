// SPDX-License-Identifier: MPL-2.0

package enclog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/fernet/fernet-go"
)

// tokenPattern matches an enclog token inside a log line. Fernet tokens
// are base64url-encoded.
var tokenPattern = regexp.MustCompile(Prefix + `[A-Za-z0-9_=-]+`)

// DefaultTailInterval is how often Tail polls the file for growth.
const DefaultTailInterval = 250 * time.Millisecond

// DecryptLine replaces every enclog token in a line with its decrypted
// payload. Lines without tokens pass through unchanged. A token the key
// cannot verify is reported via ErrDecrypt.
func DecryptLine(key *fernet.Key, line string) (string, error) {
	var firstErr error
	out := tokenPattern.ReplaceAllStringFunc(line, func(token string) string {
		msg, err := Decrypt(key, token)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return token
		}
		return msg
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Open reads log lines from r, decrypting every enclog token in place,
// and writes the result to w.
func Open(r io.Reader, key *fernet.Key, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line, err := DecryptLine(key, scanner.Text())
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// OpenFile decrypts a log file to w.
func OpenFile(path string, key *fernet.Key, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening encrypted log: %w", err)
	}
	defer f.Close()
	return Open(f, key, w)
}

// Tail follows a growing log file, decrypting new lines as they are
// appended, until the context is canceled. Existing content is emitted
// first. A truncated file is re-read from the start.
func Tail(ctx context.Context, path string, key *fernet.Key, w io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTailInterval
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening encrypted log: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var (
		offset  int64
		pending []byte
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := decryptAvailable(reader, key, w, &pending)
		offset += n
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("following encrypted log: %w", err)
		}
		if info.Size() < offset {
			// Truncated, start over.
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			reader.Reset(f)
			offset = 0
			pending = pending[:0]
		}
	}
}

// decryptAvailable consumes complete lines currently available and
// reports how many bytes were read. An incomplete trailing line is kept
// in pending until the writer finishes it.
func decryptAvailable(reader *bufio.Reader, key *fernet.Key, w io.Writer, pending *[]byte) (int64, error) {
	var read int64
	for {
		chunk, err := reader.ReadString('\n')
		read += int64(len(chunk))
		if err == io.EOF {
			*pending = append(*pending, chunk...)
			return read, nil
		}
		if err != nil {
			return read, err
		}

		line := string(*pending) + chunk[:len(chunk)-1]
		*pending = (*pending)[:0]

		decrypted, err := DecryptLine(key, line)
		if err != nil {
			return read, err
		}
		if _, err := fmt.Fprintln(w, decrypted); err != nil {
			return read, err
		}
	}
}
