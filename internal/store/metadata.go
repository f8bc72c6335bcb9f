package store

import (
	"database/sql"
	"strconv"
)

const (
	keyLastServer      = "last_server"
	keyLastCompetition = "last_competition:"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetLastServer remembers the server of the last successful login.
func (s *Store) SetLastServer(server string) error {
	return s.SetMetadata(keyLastServer, server)
}

// LastServer returns the server of the last successful login, if any.
func (s *Store) LastServer() (string, error) {
	return s.GetMetadata(keyLastServer)
}

// SetLastCompetition remembers the competition last joined on server.
func (s *Store) SetLastCompetition(server string, id int64) error {
	return s.SetMetadata(keyLastCompetition+server, strconv.FormatInt(id, 10))
}

// LastCompetition returns the competition last joined on server, or 0.
func (s *Store) LastCompetition(server string) (int64, error) {
	v, err := s.GetMetadata(keyLastCompetition + server)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
