package store

import "database/sql"

const importHashPrefix = "import_hash:"

// SetMetadata upserts a key-value pair in the app_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO app_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetImportedFileHash records the content hash a curriculum file was
// imported with, keyed by file name.
func (s *Store) SetImportedFileHash(name, hash string) error {
	return s.SetMetadata(importHashPrefix+name, hash)
}

// GetImportedFileHash returns the content hash a curriculum file was
// imported with, or empty string if the file was never imported.
func (s *Store) GetImportedFileHash(name string) (string, error) {
	return s.GetMetadata(importHashPrefix + name)
}
