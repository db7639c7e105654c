package bsdl

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
)

// Repository maps IDCODEs to the profiles of the devices that report them.
// Profiles whose IDCODE_REGISTER has don't-care bits match any IDCODE that
// agrees on the remaining bits. It is safe for concurrent use.
type Repository struct {
	mu        sync.RWMutex
	exact     map[uint32]*Profile
	wildcards []*Profile
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{exact: make(map[uint32]*Profile)}
}

// Add registers p under its IDCODE.
func (r *Repository) Add(p *Profile) error {
	if p == nil || !p.HasIDCode() {
		return fmt.Errorf("bsdl: profile has no IDCODE register")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.IDCodeMask == 0xFFFFFFFF {
		r.exact[p.IDCode] = p
		return nil
	}
	r.wildcards = append(r.wildcards, p)
	return nil
}

// Lookup returns the profile matching id. Exact IDCODEs win over wildcard
// ones; among wildcards the first added wins.
func (r *Repository) Lookup(id uint32) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.exact[id]; ok {
		return p, nil
	}
	for _, p := range r.wildcards {
		if id&p.IDCodeMask == p.IDCode&p.IDCodeMask {
			return p, nil
		}
	}
	return nil, fmt.Errorf("bsdl: no BSDL for IDCODE 0x%08X", id)
}

// Len returns the number of registered profiles.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exact) + len(r.wildcards)
}

// LoadFiles parses paths and adds each profile.
func (r *Repository) LoadFiles(paths ...string) error {
	for _, path := range paths {
		p, err := LoadProfileFile(path)
		if err != nil {
			return err
		}
		if err := r.Add(p); err != nil {
			return fmt.Errorf("bsdl: add %s: %w", path, err)
		}
	}
	return nil
}

// LoadDir recursively loads all .bsd/.bsdl/.bsm files under root. Files
// without an IDCODE register are skipped; any other error aborts the walk.
func (r *Repository) LoadDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isBSDLFile(path) {
			return nil
		}
		p, err := LoadProfileFile(path)
		if err != nil {
			return err
		}
		if !p.HasIDCode() {
			return nil
		}
		return r.Add(p)
	})
}

func isBSDLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bsd", ".bsdl", ".bsm":
		return true
	default:
		return false
	}
}
