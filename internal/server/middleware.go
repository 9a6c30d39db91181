package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"fourkind-server/internal/fourkind"
)

var (
	ErrRateLimited     = errors.New("RATE_LIMITED: Too many requests, slow down")
	ErrUsernameInvalid = errors.New("USERNAME_INVALID: Username must be 1-20 characters")
)

const maxUsernameLength = 20

// RateLimiter is a per-key sliding window limiter. Keys are player ids, or
// the client IP for requests without a session.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it fits the window.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[key]
	recent := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= r.maxRequests {
		r.requests[key] = recent
		return false
	}
	r.requests[key] = append(recent, now)
	return true
}

// Cleanup drops keys with no request inside the window.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	for key, timestamps := range r.requests {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(cutoff) {
			delete(r.requests, key)
		}
	}
}

// ConnectionHealth tracks the last message time of each websocket.
type ConnectionHealth struct {
	lastActivity map[string]time.Time
	mu           sync.RWMutex
}

func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
	}
}

func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = time.Now()
}

// IsInactive is false for connections that were never seen.
func (h *ConnectionHealth) IsInactive(connectionID string, timeout time.Duration) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	last, exists := h.lastActivity[connectionID]
	return exists && time.Since(last) > timeout
}

func (h *ConnectionHealth) InactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	inactive := make([]string, 0)
	now := time.Now()
	for connID, last := range h.lastActivity {
		if now.Sub(last) > timeout {
			inactive = append(inactive, connID)
		}
	}
	return inactive
}

func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}

// ValidateMessageType checks a websocket message type.
func ValidateMessageType(msgType string) error {
	switch msgType {
	case MessagePing, MessagePassCard:
		return nil
	}
	return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
}

func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return ErrUsernameInvalid
	}
	return nil
}

const playerKey = "player"

// AuthRequired resolves the bearer token to a player.
func AuthRequired(sessions *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, ErrTokenInvalid)
			return
		}

		player, err := sessions.Parse(token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(playerKey, player)
		c.Next()
	}
}

// RateLimit rejects players that exceed limiter.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if p, ok := playerFrom(c); ok {
			key = p.ID
		}
		if !limiter.Allow(key) {
			abortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func playerFrom(c *gin.Context) (fourkind.Player, bool) {
	v, ok := c.Get(playerKey)
	if !ok {
		return fourkind.Player{}, false
	}
	p, ok := v.(fourkind.Player)
	return p, ok
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	c.AbortWithStatusJSON(status, body)
}
