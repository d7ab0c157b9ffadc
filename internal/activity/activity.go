package activity

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	config "example.com/yatube/internal/init"
	"example.com/yatube/internal/logger"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
)

var logg = logger.New()

//go:embed migrations/*.cql
var migrationsFS embed.FS

// Entry is one line of a user's activity timeline.
type Entry struct {
	EventID string
	Type    string
	Actor   string
	Target  string
	PostID  int64
	Created time.Time
}

type StoreInterface interface {
	// Append is idempotent per (user, Created, EventID).
	Append(ctx context.Context, userID int64, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, userID int64, limit int) ([]Entry, error)
	Close()
}

type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	Close()
}

// CassandraStore keeps timelines in activity_by_user.
type CassandraStore struct {
	Session SessionInterface
}

// New ensures the keyspace, applies migrations and opens a session.
func New(cfg *config.Config) (*CassandraStore, error) {
	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := Migrate(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := newCluster(cfg)
	cluster.Keyspace = cfg.CassandraKeyspace
	cluster.Consistency = gocql.Quorum

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("activity", "Connected to Cassandra keyspace (host anonymized)")
	return &CassandraStore{Session: sess}, nil
}

func newCluster(cfg *config.Config) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}
	if cfg.CassandraDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.DCAwareRoundRobinPolicy(cfg.CassandraDC)
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}
	return cluster
}

func ensureKeyspace(cfg *config.Config) error {
	cluster := newCluster(cfg)
	cluster.Keyspace = "system"
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.CassandraKeyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("activity", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// Migrate applies the embedded CQL migrations.
func Migrate(cfg *config.Config) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logg.Info("activity", "No new migrations to apply")
	} else {
		logg.Info("activity", "Migrations applied successfully")
	}
	return nil
}

func (s *CassandraStore) Append(ctx context.Context, userID int64, e Entry) error {
	id, err := uuid.Parse(e.EventID)
	if err != nil {
		id = uuid.New()
	}
	if e.Created.IsZero() {
		e.Created = time.Now().UTC()
	}

	if err := s.Session.Query(`
		INSERT INTO activity_by_user (user_id, created_at, event_id, type, actor, target, post_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, e.Created, gocql.UUID(id), e.Type, e.Actor, e.Target, e.PostID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("activity", "Failed to append activity entry", err)
		return err
	}
	return nil
}

func (s *CassandraStore) Recent(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	iter := s.Session.Query(`
		SELECT event_id, type, actor, target, post_id, created_at
		FROM activity_by_user WHERE user_id = ? LIMIT ?`,
		userID, limit,
	).WithContext(ctx).Iter()

	var (
		res     []Entry
		id      gocql.UUID
		typ     string
		actor   string
		target  string
		postID  int64
		created time.Time
	)
	for iter.Scan(&id, &typ, &actor, &target, &postID, &created) {
		res = append(res, Entry{
			EventID: id.String(),
			Type:    typ,
			Actor:   actor,
			Target:  target,
			PostID:  postID,
			Created: created,
		})
	}

	if err := iter.Close(); err != nil {
		logg.Error("activity", "Failed to read activity timeline", err)
		return nil, err
	}
	return res, nil
}

func (s *CassandraStore) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("activity", "Cassandra session closed")
	}
}
