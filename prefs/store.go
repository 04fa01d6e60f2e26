package prefs

import (
	"database/sql"
	"fmt"
)

const (
	keyPosition   = "sidebar.position"
	keyVisibility = "sidebar.visibility"
)

// Store reads and writes preferences. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// DB exposes the underlying handle for diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// LoadState returns the saved sidebar position and visibility, empty
// strings when never saved.
func (s *Store) LoadState() (pos, vis string, err error) {
	pos, err = s.get(keyPosition)
	if err != nil {
		return "", "", err
	}
	vis, err = s.get(keyVisibility)
	if err != nil {
		return "", "", err
	}
	return pos, vis, nil
}

// SavePosition persists the sidebar dock edge.
func (s *Store) SavePosition(pos string) error { return s.set(keyPosition, pos) }

// SaveVisibility persists the sidebar visibility.
func (s *Store) SaveVisibility(vis string) error { return s.set(keyVisibility, vis) }

// Allowed reports whether the sidebar is enabled for domain. Domains with
// no rule are allowed.
func (s *Store) Allowed(domain string) (bool, error) {
	var allowed bool
	err := s.db.QueryRow(
		`SELECT allowed FROM domain_rules WHERE domain = ?`, domain,
	).Scan(&allowed)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: query domain rule: %w", err)
	}
	return allowed, nil
}

// SetDomainRule records an explicit allow or deny for domain.
func (s *Store) SetDomainRule(domain string, allowed bool) error {
	_, err := s.db.Exec(
		`INSERT INTO domain_rules (domain, allowed) VALUES (?, ?)
		 ON CONFLICT(domain) DO UPDATE SET
			allowed = excluded.allowed,
			updated_at = datetime('now')`,
		domain, allowed)
	if err != nil {
		return fmt.Errorf("prefs: set domain rule: %w", err)
	}
	return nil
}

// ClearDomainRule removes any rule for domain, restoring the default.
func (s *Store) ClearDomainRule(domain string) error {
	_, err := s.db.Exec(`DELETE FROM domain_rules WHERE domain = ?`, domain)
	if err != nil {
		return fmt.Errorf("prefs: clear domain rule: %w", err)
	}
	return nil
}

func (s *Store) get(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = datetime('now')`,
		key, value)
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}
