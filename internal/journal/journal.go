// Package journal records synchronization cycles, errors and status samples
// in a relational store. SQLite runs in memory and is dumped to disk with
// VACUUM INTO; postgres is used when configured and reachable.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arpoise/arclient/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal types.
const (
	TypeNone     = "none"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

var (
	// ErrDisabled is returned by Open when the journal type is none.
	ErrDisabled = errors.New("journal disabled")
	// ErrNotOpen is returned when the manager has no database.
	ErrNotOpen = errors.New("journal not open")
)

// SessionInfo identifies the running client in the sessions table.
type SessionInfo struct {
	DeviceID string
	Variant  string
	Platform string
	Build    string
}

// Manager handles the journal connection and writes.
type Manager struct {
	DB       *gorm.DB
	SqlDB    *sql.DB
	Kind     string
	InMemory bool
	DumpPath string
	Logger   zerolog.Logger

	mu      sync.Mutex
	session uint
	stop    chan struct{}
	done    chan struct{}
}

// NewManager creates a new journal manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Open connects according to cfg. A postgres journal falls back to an
// in-memory SQLite journal when the server cannot be reached.
func (m *Manager) Open(cfg config.JournalConfig, dbCfg config.DBConfig) error {
	var err error
	m.DumpPath = cfg.DumpPath

	switch strings.ToLower(cfg.Type) {
	case "", TypeNone:
		return ErrDisabled
	case TypeSQLite:
		m.DB, err = m.GetSqliteDB(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open SQLite journal: %w", err)
		}
	case TypePostgres:
		m.DB, err = m.GetPostgresDB(dbCfg)
		if err == nil {
			err = ping(m.DB)
		}
		if err != nil {
			m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
			m.DB, err = m.GetSqliteDB("")
			if err != nil {
				return fmt.Errorf("failed to get local SQLite DB: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown journal type: %s", cfg.Type)
	}

	m.Kind = m.DB.Dialector.Name()
	m.SqlDB, err = m.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if m.Kind == TypePostgres {
		m.SqlDB.SetMaxOpenConns(10)
	}
	m.Logger.Info().Str("kind", m.Kind).Bool("memory", m.InMemory).Msg("Journal opened")
	return nil
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetPostgresDB returns a connection to the Postgres database.
func (m *Manager) GetPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database,
	)

	m.Logger.Debug().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connecting to Postgres DB")

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB returns a connection to a SQLite database. If path is empty,
// a uniquely named in-memory database is used.
func (m *Manager) GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	m.InMemory = path == ""
	if m.InMemory {
		// Named so every pooled connection sees the same database.
		dsn = "file:arclient-" + uuid.NewString() + "?mode=memory&cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if m.InMemory {
		m.Logger.Info().Msg("Using SQLite journal in memory with periodic disk dump")
	} else {
		m.Logger.Info().Str("path", path).Msg("Using SQLite journal")
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -16000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// Setup migrates the schema and opens a new session row.
func (m *Manager) Setup(info SessionInfo) error {
	if m.DB == nil {
		return ErrNotOpen
	}
	m.Logger.Info().Msg("Migrating schema")
	if err := m.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	s := Session{
		StartedAt: time.Now().UTC(),
		DeviceID:  info.DeviceID,
		Variant:   info.Variant,
		Platform:  info.Platform,
		Build:     info.Build,
	}
	if err := m.DB.Create(&s).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	m.mu.Lock()
	m.session = s.ID
	m.mu.Unlock()

	m.Logger.Info().Uint("session", s.ID).Msg("Journal setup complete")
	return nil
}

// SessionID returns the id of the current session row.
func (m *Manager) SessionID() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// DumpMemoryToDisk vacuums the in-memory database to DumpPath.
func (m *Manager) DumpMemoryToDisk() error {
	if m.DB == nil {
		return ErrNotOpen
	}
	if m.DumpPath == "" {
		return fmt.Errorf("dump path not set")
	}

	if _, err := os.Stat(m.DumpPath); err == nil {
		if err := os.Remove(m.DumpPath); err != nil {
			return fmt.Errorf("error removing existing dump file: %w", err)
		}
	}

	start := time.Now()
	target := strings.ReplaceAll(m.DumpPath, "'", "''")
	if err := m.DB.Exec("VACUUM INTO 'file:" + target + "';").Error; err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}

	m.Logger.Debug().Dur("duration", time.Since(start)).Str("path", m.DumpPath).Msg("Dumped journal to disk")
	return nil
}

// StartDumps dumps the in-memory database every interval until Close. It
// does nothing for file or postgres journals.
func (m *Manager) StartDumps(interval time.Duration) {
	if !m.InMemory || m.DumpPath == "" || interval <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.dumpLoop(interval, m.stop, m.done)
}

func (m *Manager) dumpLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.DumpMemoryToDisk(); err != nil {
				m.Logger.Error().Err(err).Msg("Error dumping journal")
			}
		}
	}
}

// Close stops the dump goroutine, writes a final dump for in-memory
// journals and closes the connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	if m.SqlDB == nil {
		return nil
	}

	var errs []error
	if m.InMemory && m.DumpPath != "" {
		errs = append(errs, m.DumpMemoryToDisk())
	}
	errs = append(errs, m.SqlDB.Close())
	return errors.Join(errs...)
}
