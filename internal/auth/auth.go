// Package auth issues and checks the tokens remote collision authorities
// present when they connect.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"collision-server/internal/database"
)

const (
	jwtExpiry        = 24 * time.Hour
	minSecretLen     = 12
	minNameLen       = 2
	maxNameLen       = 32
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
	secretSetting    = "peer_jwt_secret"
)

// bcryptCost is lowered by tests.
var bcryptCost = 12

var (
	ErrRateLimited  = errors.New("too many login attempts, try again later")
	ErrInvalidLogin = errors.New("invalid peer name or secret")
	ErrNameTaken    = errors.New("peer name already taken")
	ErrInvalidToken = errors.New("invalid token")
)

// Store is the persistence Auth needs.
type Store interface {
	GetSetting(key string) string
	SetSetting(key, value string) error
	PeerExists(name string) (bool, error)
	CreatePeer(name, secretHash string) (int64, error)
	GetPeerByName(name string) (*database.PeerRow, error)
}

// Auth handles peer authentication
type Auth struct {
	db        Store
	jwtSecret []byte

	// Rate limiting for login attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates a new Auth handler
func NewAuth(db Store) *Auth {
	return &Auth{
		db:        db,
		jwtSecret: loadOrCreateSecret(db),
		rateMap:   make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the signing secret from settings, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db Store) []byte {
	if db != nil {
		if h := db.GetSetting(secretSetting); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting(secretSetting, hex.EncodeToString(secret)); err != nil {
			slog.Warn("could not persist peer JWT secret", "err", err)
		}
	}
	return secret
}

// Register creates a peer account and returns its id and a token.
func (a *Auth) Register(name, secret string) (int64, string, error) {
	name = strings.TrimSpace(name)

	if len(name) < minNameLen || len(name) > maxNameLen {
		return 0, "", fmt.Errorf("peer name must be %d-%d characters", minNameLen, maxNameLen)
	}
	if len(secret) < minSecretLen {
		return 0, "", fmt.Errorf("secret must be at least %d characters", minSecretLen)
	}

	exists, err := a.db.PeerExists(name)
	if err != nil {
		return 0, "", fmt.Errorf("auth: register: %w", err)
	}
	if exists {
		return 0, "", ErrNameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return 0, "", fmt.Errorf("auth: hash secret: %w", err)
	}
	id, err := a.db.CreatePeer(name, string(hash))
	if err != nil {
		return 0, "", fmt.Errorf("auth: create peer: %w", err)
	}
	token, err := a.generateToken(id, name)
	if err != nil {
		return 0, "", fmt.Errorf("auth: sign token: %w", err)
	}
	return id, token, nil
}

// Login authenticates a peer and returns a token.
func (a *Auth) Login(name, secret, ip string) (int64, string, error) {
	if !a.checkRate(ip) {
		return 0, "", ErrRateLimited
	}

	peer, err := a.db.GetPeerByName(name)
	if err != nil {
		return 0, "", fmt.Errorf("auth: login: %w", err)
	}
	if peer == nil || peer.SecretHash == "" {
		return 0, "", ErrInvalidLogin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(peer.SecretHash), []byte(secret)); err != nil {
		return 0, "", ErrInvalidLogin
	}

	token, err := a.generateToken(peer.ID, peer.Name)
	if err != nil {
		return 0, "", fmt.Errorf("auth: sign token: %w", err)
	}
	return peer.ID, token, nil
}

// ValidateToken validates a token and returns (peerID, name, error)
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", ErrInvalidToken
	}
	pid, ok := claims["pid"].(float64)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	name, ok := claims["peer"].(string)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	return int64(pid), name, nil
}

func (a *Auth) generateToken(peerID int64, name string) (string, error) {
	claims := jwt.MapClaims{
		"pid":  peerID,
		"peer": name,
		"exp":  time.Now().Add(jwtExpiry).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
