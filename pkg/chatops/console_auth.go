// SPDX-License-Identifier: MPL-2.0

package chatops

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/charmbracelet/ssh"
)

type (
	// SessionToken is a single-use credential for one console session.
	SessionToken struct {
		Value     TokenValue
		CreatedAt time.Time
		ExpiresAt time.Time
		SessionID string
		Used      bool
	}

	// ConnectionInfo contains what a client needs to reach the console.
	ConnectionInfo struct {
		Host     string
		Port     int
		Token    TokenValue
		User     string
		ExpireAt time.Time
	}
)

// GenerateToken creates a new single-use authentication token bound to a
// session identifier.
func (c *Console) GenerateToken(sessionID string) (*SessionToken, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := c.clock.Now()
	token := &SessionToken{
		Value:     TokenValue(hex.EncodeToString(tokenBytes)),
		CreatedAt: now,
		ExpiresAt: now.Add(c.cfg.TokenTTL),
		SessionID: sessionID,
		Used:      false,
	}

	c.tokenMu.Lock()
	c.tokens[token.Value] = token
	c.tokenMu.Unlock()

	c.logger.Debug("generated token", "sessionID", sessionID)

	return token, nil
}

// ConsumeToken validates a token and marks it used. A token authenticates
// exactly one session; expired, unknown, and already-used tokens all fail.
func (c *Console) ConsumeToken(tokenValue TokenValue) (*SessionToken, bool) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	token, exists := c.tokens[tokenValue]
	if !exists || token.Used {
		return nil, false
	}
	if c.clock.Now().After(token.ExpiresAt) {
		delete(c.tokens, tokenValue)
		return nil, false
	}

	token.Used = true
	return token, true
}

// RevokeToken invalidates a token.
func (c *Console) RevokeToken(tokenValue TokenValue) {
	c.tokenMu.Lock()
	delete(c.tokens, tokenValue)
	c.tokenMu.Unlock()
}

// RevokeTokensForSession revokes all tokens bound to a session identifier.
func (c *Console) RevokeTokensForSession(sessionID string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	for tokenValue, token := range c.tokens {
		if token.SessionID == sessionID {
			delete(c.tokens, tokenValue)
		}
	}
}

// GetConnectionInfo mints a token and returns connection details for it.
// Returns an error if the console is not running.
func (c *Console) GetConnectionInfo(sessionID string) (*ConnectionInfo, error) {
	if !c.IsRunning() {
		return nil, fmt.Errorf("console is not running (state: %s)", c.State())
	}

	token, err := c.GenerateToken(sessionID)
	if err != nil {
		return nil, err
	}

	return &ConnectionInfo{
		Host:     c.cfg.Host.String(),
		Port:     c.Port(),
		Token:    token.Value,
		User:     "labkit",
		ExpireAt: token.ExpiresAt,
	}, nil
}

// cleanupExpiredTokens periodically removes expired tokens.
func (c *Console) cleanupExpiredTokens() {
	defer c.DoneGoroutine()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.Context().Done():
			return
		case <-ticker.C:
			c.tokenMu.Lock()
			now := c.clock.Now()
			for tokenValue, token := range c.tokens {
				if now.After(token.ExpiresAt) {
					delete(c.tokens, tokenValue)
				}
			}
			c.tokenMu.Unlock()
		}
	}
}

// passwordHandler authenticates sessions. The password is either the
// configured shared secret or a minted single-use session token.
func (c *Console) passwordHandler(ctx ssh.Context, password string) bool {
	if c.cfg.AuthToken != "" && TokenValue(password) == c.cfg.AuthToken {
		c.logger.Debug("shared-token authentication successful", "user", ctx.User())
		return true
	}

	token, ok := c.ConsumeToken(TokenValue(password))
	if !ok {
		c.logger.Warn("invalid token authentication attempt", "user", ctx.User())
		return false
	}

	ctx.SetValue("token", token)
	ctx.SetValue("sessionID", token.SessionID)

	c.logger.Debug("token authentication successful", "sessionID", token.SessionID)
	return true
}

// publicKeyHandler rejects all public key authentication.
// The console only accepts token-based password auth.
func (c *Console) publicKeyHandler(_ ssh.Context, _ ssh.PublicKey) bool {
	return false
}
