package storage

import (
	"database/sql"
	"time"
)

// AddDownload appends a run to the journal and returns its row ID.
func (s *SQLiteStore) AddDownload(d Download) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO downloads (run_id, user_id, chat_id, url, title, file_name, size_bytes, status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.Exec(query,
		d.RunID, d.UserID, d.ChatID, d.URL, d.Title, d.FileName,
		d.SizeBytes, d.Status, d.Error, d.DurationMs, d.CreatedAt,
	)
	recordJournalWrite(d.Status, err)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetRecentDownloads returns the newest runs first. userID 0 means all users.
func (s *SQLiteStore) GetRecentDownloads(userID int64, limit int) ([]Download, error) {
	query := `
		SELECT id, run_id, user_id, chat_id, url, title, file_name, size_bytes, status, error, duration_ms, created_at
		FROM downloads
	`
	var args []interface{}
	if userID != 0 {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []Download
	for rows.Next() {
		var d Download
		var title, fileName, errText sql.NullString
		if err := rows.Scan(
			&d.ID, &d.RunID, &d.UserID, &d.ChatID, &d.URL, &title, &fileName,
			&d.SizeBytes, &d.Status, &errText, &d.DurationMs, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		d.Title, d.FileName, d.Error = title.String, fileName.String, errText.String
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}
