package storage

import (
	"database/sql"
	"time"
)

func (s *SQLiteStore) UpsertUser(user User) error {
	query := `
		INSERT INTO users (id, username, first_name, last_name, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			last_seen = excluded.last_seen
	`
	if user.LastSeen.IsZero() {
		user.LastSeen = time.Now().UTC()
	}
	_, err := s.db.Exec(query, user.ID, user.Username, user.FirstName, user.LastName, user.LastSeen)
	return err
}

// GetAllUsers returns known users, most recently seen first. Users that
// only appear in the download journal are included with placeholder names.
func (s *SQLiteStore) GetAllUsers() ([]User, error) {
	rows, err := s.db.Query("SELECT id, username, first_name, last_name, last_seen FROM users ORDER BY last_seen DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	known := make(map[int64]bool)

	for rows.Next() {
		var u User
		var username, firstName, lastName sql.NullString
		var lastSeen sql.NullTime
		if err := rows.Scan(&u.ID, &username, &firstName, &lastName, &lastSeen); err != nil {
			return nil, err
		}
		u.Username, u.FirstName, u.LastName = username.String, firstName.String, lastName.String
		if lastSeen.Valid {
			u.LastSeen = lastSeen.Time
		}
		users = append(users, u)
		known[u.ID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orphans, err := s.db.Query("SELECT DISTINCT user_id FROM downloads")
	if err != nil {
		return nil, err
	}
	defer orphans.Close()

	for orphans.Next() {
		var uid int64
		if err := orphans.Scan(&uid); err != nil {
			return nil, err
		}
		if known[uid] {
			continue
		}
		users = append(users, User{ID: uid, FirstName: "Unknown"})
		known[uid] = true
	}
	return users, orphans.Err()
}
