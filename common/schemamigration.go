package common

import (
	"fmt"
	"regexp"
	"time"

	"github.com/commune-gg/commune/common/config"
)

var (
	createTableRegex         = regexp.MustCompile(`(?i)create table if not exists ([0-9a-z_]*) *\(`)
	alterTableAddColumnRegex = regexp.MustCompile(`(?i)alter table ([0-9a-z_]*) add column if not exists ([0-9a-z_]*)`)
	addIndexRegex            = regexp.MustCompile(`(?i)create (unique )?index if not exists ([0-9a-z_]*) on ([0-9a-z_]*)`)
)

var confNoSchemaInit = config.RegisterOption("commune.no_schema_init", "Disable schema initialization", false)

type DBSchema struct {
	Name    string
	Schemas []string
}

var (
	schemasToInit  = make([]*DBSchema, 0)
	schemasApplied bool
)

// RegisterDBSchemas applies the plugin's schemas, plugins call this from
// their RegisterPlugin. Registrations made before common.Init are queued
// and applied by it once the database is up.
func RegisterDBSchemas(name string, schemas ...string) {
	if schemasApplied {
		InitSchemas(name, schemas...)
		return
	}

	schemasToInit = append(schemasToInit, &DBSchema{Name: name, Schemas: schemas})
}

func initQueuedSchemas() {
	for _, v := range schemasToInit {
		InitSchemas(v.Name, v.Schemas...)
	}

	schemasToInit = nil
	schemasApplied = true
}

// InitSchemas applies the statements against postgres, holding a redis lock
// so multiple nodes starting at once don't run migrations concurrently.
// Statements that provably already took effect are skipped.
func InitSchemas(name string, schemas ...string) {
	if err := BlockingLockRedisKey("schema_init", time.Minute*10, 60*60); err != nil {
		panic(err)
	}

	defer UnlockRedisKey("schema_init")

	for i, v := range schemas {
		actualName := fmt.Sprintf("%s[%d]", name, i)
		initSchema(v, actualName)
	}
}

func initSchema(schema string, name string) {
	if confNoSchemaInit.GetBool() {
		return
	}

	skip, err := checkSkipSchemaInit(schema)
	if err != nil {
		logger.WithError(err).Error("Failed checking if we should skip schema: ", name)
	}

	if skip {
		return
	}

	logger.Info("Schema initialization: ", name, ": not skipped")

	_, err = PQ.Exec(schema)
	if err != nil {
		UnlockRedisKey("schema_init")
		logger.WithError(err).Fatal("failed initializing postgres db schema for ", name)
	}
}

func checkSkipSchemaInit(schema string) (exists bool, err error) {
	if matches := createTableRegex.FindAllStringSubmatch(schema, -1); len(matches) > 0 {
		return TableExists(matches[0][1])
	}

	if matches := addIndexRegex.FindAllStringSubmatch(schema, -1); len(matches) > 0 {
		return indexExists(matches[0][3], matches[0][2])
	}

	if matches := alterTableAddColumnRegex.FindAllStringSubmatch(schema, -1); len(matches) > 0 {
		return columnExists(matches[0][1], matches[0][2])
	}

	return false, nil
}

func TableExists(table string) (b bool, err error) {
	const query = `
SELECT EXISTS
(
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public'
	AND table_name = $1
);`

	err = PQ.QueryRow(query, table).Scan(&b)
	return b, err
}

func indexExists(table, index string) (b bool, err error) {
	const query = `
SELECT EXISTS
(
	SELECT 1
	FROM
	    pg_class t,
	    pg_class i,
	    pg_index ix
	WHERE
	    t.oid = ix.indrelid
	    AND i.oid = ix.indexrelid
	    AND t.relkind = 'r'
	    AND t.relname = $1
	    AND i.relname = $2
);`

	err = PQ.QueryRow(query, table, index).Scan(&b)
	return b, err
}

func columnExists(table, column string) (b bool, err error) {
	const query = `
SELECT EXISTS
(
	SELECT 1
	FROM information_schema.columns
	WHERE table_name=$1 and column_name=$2
);`

	err = PQ.QueryRow(query, table, column).Scan(&b)
	return b, err
}
