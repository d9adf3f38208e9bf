package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// document is the storage row backing every container. Bodies are opaque
// jsonb; the partition key mirrors the addressing scheme of the upstream
// document store.
type document struct {
	Container    string `gorm:"primaryKey;size:64"`
	ID           string `gorm:"primaryKey;size:128"`
	PartitionKey string `gorm:"index;size:128"`
	Body         []byte `gorm:"type:jsonb;not null"`
	LastActor    string `gorm:"size:128"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (document) TableName() string { return "documents" }

// DBConfig holds database connection pool configuration.
type DBConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Connect opens the postgres connection, applies pooling settings and
// migrates the documents table.
func Connect(cfg DBConfig) (*gorm.DB, error) {
	gl := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return db, nil
}

type pgStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore builds the postgres-backed document store.
func NewStore(db *gorm.DB, logger *zap.Logger) Store {
	if db == nil {
		panic("db is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pgStore{db: db, logger: logger}
}

func (s *pgStore) Get(ctx context.Context, container, id, partitionKey string) (json.RawMessage, error) {
	var doc document
	err := s.db.WithContext(ctx).
		Where("container = ? AND id = ? AND partition_key = ?", container, id, partitionKey).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", container, id, err)
	}
	return json.RawMessage(doc.Body), nil
}

func (s *pgStore) Query(ctx context.Context, container, filter string, params map[string]interface{}) ([]json.RawMessage, error) {
	var docs []document
	q := s.db.WithContext(ctx).Where("container = ?", container)
	if filter != "" {
		args := make(map[string]interface{}, len(params))
		for k, v := range params {
			args[k] = v
		}
		q = q.Where(filter, args)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", container, err)
	}

	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, json.RawMessage(d.Body))
	}
	return out, nil
}

func (s *pgStore) Create(ctx context.Context, container, id, partitionKey string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", container, id, err)
	}
	row := document{
		Container:    container,
		ID:           id,
		PartitionKey: partitionKey,
		Body:         body,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create %s/%s: %w", container, id, err)
	}
	return nil
}

// Patch applies ops inside one transaction with the row locked, so concurrent
// patches of the same document serialize instead of losing writes.
func (s *pgStore) Patch(ctx context.Context, container, id, partitionKey string, ops []PatchOp, actor string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("container = ? AND id = ? AND partition_key = ?", container, id, partitionKey).
			First(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock %s/%s: %w", container, id, err)
		}

		var body map[string]interface{}
		if err := json.Unmarshal(doc.Body, &body); err != nil {
			return fmt.Errorf("decode %s/%s: %w", container, id, err)
		}
		if err := applyOps(body, ops); err != nil {
			return err
		}
		updated, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", container, id, err)
		}

		doc.Body = updated
		doc.LastActor = actor
		if err := tx.Save(&doc).Error; err != nil {
			return fmt.Errorf("save %s/%s: %w", container, id, err)
		}

		s.logger.Debug("patched document",
			zap.String("container", container),
			zap.String("id", id),
			zap.Int("ops", len(ops)),
			zap.String("actor", actor))
		return nil
	})
}
