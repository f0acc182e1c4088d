package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/dexindexer/dbtypes"
	"github.com/ethpandaops/dexindexer/types"
	"github.com/ethpandaops/dexindexer/utils"
)

//go:embed schema/pgsql/*.sql
var EmbedPgsqlSchema embed.FS

//go:embed schema/sqlite/*.sql
var EmbedSqliteSchema embed.FS

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("row not found")

var DbEngine dbtypes.DBEngineType
var ReaderDb *sqlx.DB
var writerDb *sqlx.DB
var writerMutex sync.Mutex

var logger = logrus.StandardLogger().WithField("module", "db")

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

func checkDbConn(dbConn *sqlx.DB, dataBaseName string) {
	// The golang sql driver does not properly implement PingContext
	// therefore we use a timer to catch db connection timeouts
	dbConnectionTimeout := time.NewTimer(15 * time.Second)

	go func() {
		<-dbConnectionTimeout.C
		logger.Fatalf("timeout while connecting to %s", dataBaseName)
	}()

	err := dbConn.Ping()
	if err != nil {
		logger.Fatalf("unable to Ping %s: %s", dataBaseName, err)
	}

	dbConnectionTimeout.Stop()
}

func mustInitSqlite(config *types.SqliteDatabaseConfig) (*sqlx.DB, *sqlx.DB) {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 50
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxOpenConns < config.MaxIdleConns {
		config.MaxIdleConns = config.MaxOpenConns
	}

	logger.Infof("initializing sqlite connection to %v with %v/%v conn limit", config.File, config.MaxIdleConns, config.MaxOpenConns)
	dbConn, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", config.File))
	if err != nil {
		utils.LogFatal(err, "error opening sqlite database", 0)
	}

	checkDbConn(dbConn, "database")
	dbConn.SetConnMaxIdleTime(0)
	dbConn.SetConnMaxLifetime(0)
	dbConn.SetMaxOpenConns(config.MaxOpenConns)
	dbConn.SetMaxIdleConns(config.MaxIdleConns)

	return dbConn, dbConn
}

func pgsqlDsn(user, password, host, port, name string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
}

func mustInitPgsql(writer *types.PgsqlDatabaseConfig, reader *types.PgsqlDatabaseConfig) (*sqlx.DB, *sqlx.DB) {
	for _, cfg := range []*types.PgsqlDatabaseConfig{writer, reader} {
		if cfg.MaxOpenConns == 0 {
			cfg.MaxOpenConns = 50
		}
		if cfg.MaxIdleConns == 0 {
			cfg.MaxIdleConns = 10
		}
		if cfg.MaxOpenConns < cfg.MaxIdleConns {
			cfg.MaxIdleConns = cfg.MaxOpenConns
		}
	}

	logger.Infof("initializing pgsql writer connection to %v with %v/%v conn limit", writer.Host, writer.MaxIdleConns, writer.MaxOpenConns)
	dbConnWriter, err := sqlx.Open("pgx", pgsqlDsn(writer.Username, writer.Password, writer.Host, writer.Port, writer.Name))
	if err != nil {
		utils.LogFatal(err, "error getting pgsql writer database", 0)
	}

	checkDbConn(dbConnWriter, "database")
	dbConnWriter.SetConnMaxIdleTime(time.Second * 30)
	dbConnWriter.SetConnMaxLifetime(time.Second * 60)
	dbConnWriter.SetMaxOpenConns(writer.MaxOpenConns)
	dbConnWriter.SetMaxIdleConns(writer.MaxIdleConns)

	logger.Infof("initializing pgsql reader connection to %v with %v/%v conn limit", reader.Host, reader.MaxIdleConns, reader.MaxOpenConns)
	dbConnReader, err := sqlx.Open("pgx", pgsqlDsn(reader.Username, reader.Password, reader.Host, reader.Port, reader.Name))
	if err != nil {
		utils.LogFatal(err, "error getting pgsql reader database", 0)
	}

	checkDbConn(dbConnReader, "read replica database")
	dbConnReader.SetConnMaxIdleTime(time.Second * 30)
	dbConnReader.SetConnMaxLifetime(time.Second * 60)
	dbConnReader.SetMaxOpenConns(reader.MaxOpenConns)
	dbConnReader.SetMaxIdleConns(reader.MaxIdleConns)
	return dbConnWriter, dbConnReader
}

func MustInitDB(config *types.DatabaseConfig) {
	switch config.Engine {
	case "sqlite":
		if config.Sqlite == nil {
			logger.Fatalf("missing sqlite database config")
		}
		DbEngine = dbtypes.DBEngineSqlite
		writerDb, ReaderDb = mustInitSqlite(config.Sqlite)
	case "pgsql":
		if config.Pgsql == nil {
			logger.Fatalf("missing pgsql database config")
		}
		readerConfig := config.Pgsql
		writerConfig := readerConfig
		if config.PgsqlWriter != nil && config.PgsqlWriter.Host != "" {
			writerConfig = (*types.PgsqlDatabaseConfig)(config.PgsqlWriter)
		}
		DbEngine = dbtypes.DBEnginePgsql
		writerDb, ReaderDb = mustInitPgsql(writerConfig, readerConfig)
	default:
		logger.Fatalf("unknown database engine type: %s", config.Engine)
	}
}

func MustCloseDB() {
	err := writerDb.Close()
	if err != nil {
		logger.Errorf("Error closing writer db connection: %v", err)
	}
	if ReaderDb != writerDb {
		err = ReaderDb.Close()
		if err != nil {
			logger.Errorf("Error closing reader db connection: %v", err)
		}
	}
}

func ApplyEmbeddedDbSchema(version int64) error {
	var engineDialect string
	var schemaDirectory string
	switch DbEngine {
	case dbtypes.DBEnginePgsql:
		goose.SetBaseFS(EmbedPgsqlSchema)
		engineDialect = "postgres"
		schemaDirectory = "schema/pgsql"
	case dbtypes.DBEngineSqlite:
		goose.SetBaseFS(EmbedSqliteSchema)
		engineDialect = "sqlite3"
		schemaDirectory = "schema/sqlite"
	default:
		return fmt.Errorf("unknown database engine")
	}

	if err := goose.SetDialect(engineDialect); err != nil {
		return err
	}

	switch {
	case version == -2:
		return goose.Up(writerDb.DB, schemaDirectory)
	case version == -1:
		return goose.UpByOne(writerDb.DB, schemaDirectory)
	default:
		return goose.UpTo(writerDb.DB, schemaDirectory, version)
	}
}

func EngineQuery(queryMap map[dbtypes.DBEngineType]string) string {
	if queryMap[DbEngine] != "" {
		return queryMap[DbEngine]
	}
	return queryMap[dbtypes.DBEngineAny]
}

// forUpdate locks rows read inside a pgsql transaction. Sqlite serializes writers instead.
func forUpdate() string {
	if DbEngine == dbtypes.DBEnginePgsql {
		return " FOR UPDATE"
	}
	return ""
}

// upsertQuery builds a named insert-or-update statement for a whole row.
func upsertQuery(table string, conflict []string, columns []string) string {
	keys := make(map[string]bool, len(conflict))
	for _, column := range conflict {
		keys[column] = true
	}

	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, column := range columns {
		placeholders[i] = ":" + column
		if !keys[column] {
			updates = append(updates, fmt.Sprintf("%v = excluded.%v", column, column))
		}
	}

	action := "DO NOTHING"
	if len(updates) > 0 {
		action = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	// columns missing from the statement keep their stored values on both engines
	return EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEngineAny: fmt.Sprintf(
			"INSERT INTO %v (%v) VALUES (%v) ON CONFLICT (%v) %v",
			table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(conflict, ", "), action,
		),
	})
}

// insertIgnoreQuery builds a named insert that keeps an already existing row untouched.
func insertIgnoreQuery(table string, conflict []string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		placeholders[i] = ":" + column
	}

	return EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: fmt.Sprintf(
			"INSERT INTO %v (%v) VALUES (%v) ON CONFLICT (%v) DO NOTHING",
			table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(conflict, ", "),
		),
		dbtypes.DBEngineSqlite: fmt.Sprintf(
			"INSERT OR IGNORE INTO %v (%v) VALUES (%v)",
			table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
		),
	})
}

// insertIgnore runs insertIgnoreQuery for row and reports whether a new row was written.
func insertIgnore(ctx context.Context, tx *sqlx.Tx, table string, conflict []string, columns []string, row interface{}) (bool, error) {
	res, err := tx.NamedExecContext(ctx, insertIgnoreQuery(table, conflict, columns), row)
	if err != nil {
		return false, errors.Wrapf(err, "error inserting into %v", table)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "error reading affected rows of %v", table)
	}
	return affected > 0, nil
}

// upsert runs upsertQuery for row.
func upsert(ctx context.Context, tx *sqlx.Tx, table string, conflict []string, columns []string, row interface{}) error {
	_, err := tx.NamedExecContext(ctx, upsertQuery(table, conflict, columns), row)
	if err != nil {
		return errors.Wrapf(err, "error upserting into %v", table)
	}
	return nil
}

func selectColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

func RunDBTransaction(handler func(tx *sqlx.Tx) error) error {
	if DbEngine == dbtypes.DBEngineSqlite {
		writerMutex.Lock()
		defer writerMutex.Unlock()
	}

	tx, err := writerDb.Beginx()
	if err != nil {
		return fmt.Errorf("error starting db transactions: %v", err)
	}

	defer tx.Rollback()

	err = handler(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error committing db transaction: %v", err)
	}

	return nil
}

// getRow wraps sqlx.GetContext, mapping sql.ErrNoRows to ErrNotFound.
func getRow(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// IsUniqueViolation reports whether err is a duplicate key error of either engine.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "UNIQUE constraint failed")
}
