package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	apiKeyPrefix = "inv_live_"
	keyLength    = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// Business is a tenant. Every synchronized record belongs to exactly one.
type Business struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIKey represents a stored API key (without the plaintext secret).
type APIKey struct {
	ID         string
	BusinessID string
	KeyPrefix  string
	Name       string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// CreateBusiness registers a new tenant.
func (db *ServerDB) CreateBusiness(name string) (*Business, error) {
	if name == "" {
		return nil, fmt.Errorf("business name is required")
	}
	id, err := generateID("biz_")
	if err != nil {
		return nil, fmt.Errorf("generate business id: %w", err)
	}
	now := db.now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO businesses (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert business: %w", err)
	}
	return &Business{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetBusiness looks up a tenant by ID, nil when absent.
func (db *ServerDB) GetBusiness(id string) (*Business, error) {
	b := &Business{}
	err := db.conn.QueryRow(
		`SELECT id, name, created_at, updated_at FROM businesses WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	return b, nil
}

// GenerateAPIKey creates a new API key for the given business.
// Returns the plaintext key (shown once) and the stored APIKey record.
func (db *ServerDB) GenerateAPIKey(businessID, name string, expiresAt *time.Time) (string, *APIKey, error) {
	var exists int
	if err := db.conn.QueryRow(`SELECT 1 FROM businesses WHERE id = ?`, businessID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, fmt.Errorf("business not found: %s", businessID)
		}
		return "", nil, fmt.Errorf("check business: %w", err)
	}

	id, err := generateID("ak_")
	if err != nil {
		return "", nil, fmt.Errorf("generate api key id: %w", err)
	}

	// Generate random base62 key
	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := apiKeyPrefix + string(secret)
	prefix := string(secret[:8])

	hash := sha256.Sum256([]byte(plaintext))
	keyHash := hex.EncodeToString(hash[:])

	now := db.now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO api_keys (id, business_id, key_hash, key_prefix, name, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, businessID, keyHash, prefix, name, expiresAt, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}

	ak := &APIKey{
		ID:         id,
		BusinessID: businessID,
		KeyPrefix:  prefix,
		Name:       name,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	return plaintext, ak, nil
}

// VerifyAPIKey checks a plaintext key against stored hashes.
// Returns the matching APIKey and its Business, or an error.
func (db *ServerDB) VerifyAPIKey(plaintextKey string) (*APIKey, *Business, error) {
	hash := sha256.Sum256([]byte(plaintextKey))
	keyHash := hex.EncodeToString(hash[:])

	ak := &APIKey{}
	b := &Business{}
	err := db.conn.QueryRow(`
		SELECT ak.id, ak.business_id, ak.key_prefix, ak.name, ak.expires_at, ak.last_used_at, ak.created_at,
		       b.id, b.name, b.created_at, b.updated_at
		FROM api_keys ak
		JOIN businesses b ON b.id = ak.business_id
		WHERE ak.key_hash = ?`, keyHash,
	).Scan(&ak.ID, &ak.BusinessID, &ak.KeyPrefix, &ak.Name, &ak.ExpiresAt, &ak.LastUsedAt, &ak.CreatedAt,
		&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("invalid api key")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify api key: %w", err)
	}

	if ak.ExpiresAt != nil && ak.ExpiresAt.Before(db.now()) {
		return nil, nil, fmt.Errorf("api key expired")
	}

	db.conn.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, db.now().UTC(), ak.ID)
	return ak, b, nil
}
