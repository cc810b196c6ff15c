package storage

// UserRepository handles user data operations.
type UserRepository interface {
	UpsertUser(user User) error
	GetAllUsers() ([]User, error)
}

// DownloadRepository is the download journal.
type DownloadRepository interface {
	AddDownload(d Download) (int64, error)
	GetRecentDownloads(userID int64, limit int) ([]Download, error)
	GetDownloadStats(userID int64) (*DownloadStats, error)
}

// MaintenanceRepository handles database housekeeping.
type MaintenanceRepository interface {
	GetDBSize() (int64, error)
	GetTableSizes() ([]TableSize, error)
	CleanupDownloads(keepPerUser int) (int64, error)
}

type Storage interface {
	UserRepository
	DownloadRepository
	MaintenanceRepository
	Close() error
}

var _ Storage = (*SQLiteStore)(nil)
