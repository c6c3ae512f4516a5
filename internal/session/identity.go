package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Identity is the visitor's locally persisted identity, the client-side
// equivalent of the browser's localStorage entries. The visitor id is
// generated exactly once and stays stable for the life of the file.
type Identity struct {
	VisitorID       string `json:"visitorId"`
	VisitorName     string `json:"visitorName,omitempty"`
	VisitorEmail    string `json:"visitorEmail,omitempty"`
	VisitorWhatsApp string `json:"visitorWhatsApp,omitempty"`

	path string
}

// LoadIdentity reads the identity file, creating one with a fresh visitor
// id if it does not exist yet.
func LoadIdentity(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		id := &Identity{
			VisitorID: "visitor_" + uuid.NewString(),
			path:      path,
		}
		if err := id.Save(); err != nil {
			return nil, err
		}
		return id, nil
	}
	if err != nil {
		return nil, err
	}

	id := &Identity{path: path}
	if err := json.Unmarshal(raw, id); err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	if id.VisitorID == "" {
		id.VisitorID = "visitor_" + uuid.NewString()
		if err := id.Save(); err != nil {
			return nil, err
		}
	}
	return id, nil
}

// Save writes the identity back to its file.
func (id *Identity) Save() error {
	raw, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(id.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(id.path, raw, 0o600)
}
