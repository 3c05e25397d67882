// SPDX-License-Identifier: MPL-2.0

package enclog

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
)

// Prefix marks an encrypted payload inside a log line.
const Prefix = "enclogdata:"

// ErrDecrypt is returned when a token cannot be verified and decrypted
// with the given keys.
var ErrDecrypt = errors.New("cannot decrypt enclog token")

// GenKey generates a new Fernet key.
func GenKey() (*fernet.Key, error) {
	key := &fernet.Key{}
	if err := key.Generate(); err != nil {
		return nil, fmt.Errorf("generating fernet key: %w", err)
	}
	return key, nil
}

// ParseKey decodes a base64-encoded Fernet key.
func ParseKey(encoded string) (*fernet.Key, error) {
	key, err := fernet.DecodeKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding fernet key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts a message and wraps it in the enclog prefix.
func Encrypt(key *fernet.Key, msg string) (string, error) {
	token, err := fernet.EncryptAndSign([]byte(msg), key)
	if err != nil {
		return "", fmt.Errorf("encrypting log message: %w", err)
	}
	return Prefix + string(token), nil
}

// Decrypt verifies and decrypts a token, with or without the enclog
// prefix. Tokens do not expire.
func Decrypt(key *fernet.Key, token string) (string, error) {
	if len(token) >= len(Prefix) && token[:len(Prefix)] == Prefix {
		token = token[len(Prefix):]
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{key})
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}

// Logger emits log records with encrypted message payloads. Level,
// formatting and destination stay with the wrapped logger; only the
// message is protected.
type Logger struct {
	logger *log.Logger
	key    *fernet.Key
}

// NewLogger wraps a logger with payload encryption under the given key.
func NewLogger(logger *log.Logger, key *fernet.Key) *Logger {
	return &Logger{logger: logger, key: key}
}

// Debug logs an encrypted message at debug level.
func (l *Logger) Debug(msg string) { l.emit(l.logger.Debug, msg) }

// Info logs an encrypted message at info level.
func (l *Logger) Info(msg string) { l.emit(l.logger.Info, msg) }

// Warn logs an encrypted message at warn level.
func (l *Logger) Warn(msg string) { l.emit(l.logger.Warn, msg) }

// Error logs an encrypted message at error level.
func (l *Logger) Error(msg string) { l.emit(l.logger.Error, msg) }

func (l *Logger) emit(fn func(msg any, keyvals ...any), msg string) {
	encrypted, err := Encrypt(l.key, msg)
	if err != nil {
		// Never let the plaintext through on failure.
		l.logger.Error("enclog encryption failed", "err", err)
		return
	}
	fn(encrypted)
}
