package tokenpool

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Document is the persisted credential-list document.
type Document struct {
	Tokens []string `json:"tokens"`
	Salt   string   `json:"salt"`
}

// Store reads and writes the credential document at a fixed path.
type Store struct {
	path string
}

// NewStore creates a Store for the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the credential document. A missing file is not an error: it
// yields an empty token list and a freshly generated salt, which the next
// Save will persist.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			salt, err := newSalt()
			if err != nil {
				return nil, err
			}
			return &Document{Salt: encodeSalt(salt)}, nil
		}
		return nil, fmt.Errorf("reading token document: %w", err)
	}

	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing token document: %w", err)
	}

	if doc.Salt == "" {
		salt, err := newSalt()
		if err != nil {
			return nil, err
		}
		doc.Salt = encodeSalt(salt)
	}

	return doc, nil
}

// Save writes the credential document with 0600 permissions.
func (s *Store) Save(doc *Document) error {
	if doc == nil {
		return errors.New("cannot save nil token document")
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token document: %w", err)
	}

	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing token document: %w", err)
	}

	return nil
}

// Path returns the resolved path of the credential document.
func (s *Store) Path() string {
	return s.path
}

// SaltBytes decodes the document's salt.
func (d *Document) SaltBytes() ([]byte, error) {
	return decodeSalt(d.Salt)
}
