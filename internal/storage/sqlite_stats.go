package storage

import (
	"fmt"
)

// GetDownloadStats aggregates the journal. userID 0 means all users.
func (s *SQLiteStore) GetDownloadStats(userID int64) (*DownloadStats, error) {
	stats := &DownloadStats{ByStatus: make(map[string]int)}

	whereUser := ""
	var args []interface{}
	if userID != 0 {
		whereUser = " WHERE user_id = ?"
		args = append(args, userID)
	}

	err := s.db.QueryRow(
		"SELECT COUNT(*), COUNT(DISTINCT user_id), COALESCE(AVG(duration_ms), 0) FROM downloads"+whereUser, args...,
	).Scan(&stats.Total, &stats.DistinctUsers, &stats.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}

	rows, err := s.db.Query("SELECT status, COUNT(*), COALESCE(SUM(size_bytes), 0) FROM downloads"+whereUser+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group downloads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		var bytes int64
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
		if status == StatusDelivered {
			stats.DeliveredBytes = bytes
		}
	}
	return stats, rows.Err()
}
