package listener

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/storage"
)

// RequestStore keeps a content-addressed copy of each request file and records
// it once per distinct content.
type RequestStore struct {
	db       *storage.DB
	storeDir string
}

func NewRequestStore(db *storage.DB, storeDir string) *RequestStore {
	return &RequestStore{db: db, storeDir: storeDir}
}

// Store returns the request row for the file and whether it is new.
func (s *RequestStore) Store(f InboxFile) (internal.RequestRow, bool, error) {
	hashBytes := sha256.Sum256(f.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	existing, err := s.db.GetRequestByHash(hash)
	if err != nil {
		return internal.RequestRow{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	if err := os.MkdirAll(s.storeDir, 0o755); err != nil {
		return internal.RequestRow{}, false, err
	}
	rawPath := filepath.Join(s.storeDir, hash+strings.ToLower(filepath.Ext(f.Name)))
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, f.Raw, 0o644); err != nil {
			return internal.RequestRow{}, false, err
		}
	}

	row, err := s.db.UpsertRequest(f.Name, hash, rawPath, internal.RequestStored)
	return row, err == nil, err
}
