package store

import (
	"log/slog"
	"net/http"
	"time"
)

// SaveCookies replaces the stored cookies of server. Session cookies without
// an expiry are kept until DeleteCookies.
func (s *Store) SaveCookies(server string, cookies []*http.Cookie) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cookies WHERE server = ?`, server); err != nil {
		return err
	}
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		var expires int64
		if !c.Expires.IsZero() {
			expires = c.Expires.Unix()
		}
		if _, err := tx.Exec(
			`INSERT INTO cookies (server, name, value, path, expires_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(server, name, path) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
			server, c.Name, c.Value, path, expires,
		); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("saved cookies", "server", server, "count", len(cookies))
	return nil
}

// LoadCookies returns the unexpired cookies of server. Expired rows are removed.
func (s *Store) LoadCookies(server string) ([]*http.Cookie, error) {
	now := s.now()
	if _, err := s.db.Exec(`DELETE FROM cookies WHERE expires_at > 0 AND expires_at <= ?`, now.Unix()); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT name, value, path, expires_at FROM cookies WHERE server = ? ORDER BY name`, server,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*http.Cookie
	for rows.Next() {
		var c http.Cookie
		var expires int64
		if err := rows.Scan(&c.Name, &c.Value, &c.Path, &expires); err != nil {
			return nil, err
		}
		if expires > 0 {
			c.Expires = time.Unix(expires, 0)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteCookies forgets the login of server.
func (s *Store) DeleteCookies(server string) error {
	_, err := s.db.Exec(`DELETE FROM cookies WHERE server = ?`, server)
	return err
}
