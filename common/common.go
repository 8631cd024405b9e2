package common

import (
	"database/sql"
	"os"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/bwmarrin/snowflake"
	"github.com/mediocregopher/radix/v3"
	"github.com/sirupsen/logrus"

	// postgres driver
	_ "github.com/lib/pq"

	"github.com/commune-gg/commune/common/config"
)

const (
	VERSION = "1.4.0"
)

var (
	PQ        *sql.DB
	RedisPool *radix.Pool

	RedisAddr string

	// NodeID identifies this process when multiple instances run against
	// the same redis/postgres pair
	NodeID string

	Testing = os.Getenv("COMMUNE_TESTING") != ""

	idGen *snowflake.Node

	logger = GetFixedPrefixLogger("common")
)

var (
	confRedis      = config.RegisterOption("commune.redis", "Address of the redis server", "localhost:6379")
	confPQHost     = config.RegisterOption("commune.pqhost", "Postgres server hostname", "localhost")
	confPQUsername = config.RegisterOption("commune.pqusername", "Postgres connection username", "postgres")
	confPQPassword = config.RegisterOption("commune.pqpassword", "Postgres connection password", "")
	confPQDB       = config.RegisterOption("commune.pqdb", "Postgres database name", "commune")

	ConfMaxSQLConns = config.RegisterOption("commune.max_sql_connections", "Maximum number of open postgres connections", 10)
)

func init() {
	// replaced with a node specific generator in CoreInit, this keeps GenID
	// usable in tests that never run it
	idGen, _ = snowflake.NewNode(0)
}

// CoreInit initializes the essential shared resources: config, redis,
// postgres and the id generator. It has to run before any plugin is
// registered, since plugin registration touches the database through
// InitSchemas.
func CoreInit(loadConfig bool) error {
	config.AddSource(&config.EnvSource{})

	if loadConfig {
		config.Load()
	}

	err := connectRedis(confRedis.GetString())
	if err != nil {
		return err
	}

	// config values may also live in redis, reload with that source attached
	if loadConfig {
		config.AddSource(&config.RedisConfigStore{Pool: RedisPool})
		config.Load()
	}

	err = connectDB(confPQHost.GetString(), confPQUsername.GetString(), confPQPassword.GetString(), confPQDB.GetString(), ConfMaxSQLConns.GetInt())
	if err != nil {
		return err
	}

	node, err := snowflake.NewNode(snowflakeNodeID())
	if err != nil {
		return errors.WithStackIf(err)
	}
	idGen = node

	return nil
}

// Init runs the delayed setup that needs all plugins registered, currently
// just the queued schema migrations.
func Init() error {
	initQueuedSchemas()
	return nil
}

func connectRedis(addr string) error {
	RedisAddr = addr

	pool, err := radix.NewPool("tcp", addr, 25, radix.PoolOnFullBuffer(256, time.Second))
	if err != nil {
		return errors.WrapIf(err, "connecting to redis failed")
	}

	RedisPool = pool
	return nil
}

func connectDB(host, user, pass, dbName string, maxConns int) error {
	connStr := "host=" + host + " user=" + user + " dbname=" + dbName + " sslmode=disable"
	if pass != "" {
		connStr += " password='" + pass + "'"
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return errors.WrapIf(err, "opening postgres connection failed")
	}

	// the connection is lazy, ping with a couple retries so a bad address
	// fails here instead of at the first query
	for i := 0; i < 3; i++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		return errors.WrapIf(err, "pinging postgres failed")
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	PQ = db
	return nil
}

func snowflakeNodeID() int64 {
	if NodeID == "" {
		return 0
	}

	// node ids are of the form "name-123", fall back to a hash of the
	// whole string when the suffix doesn't parse
	parts := strings.Split(NodeID, "-")
	if n, err := ParseInt(parts[len(parts)-1]); err == nil {
		return n % 1024
	}

	var h int64
	for _, c := range NodeID {
		h = h*31 + int64(c)
	}
	if h < 0 {
		h = -h
	}
	return h % 1024
}

// GenID returns a new unique snowflake id, used for all entity primary keys.
func GenID() int64 {
	return idGen.Generate().Int64()
}

var shutdownFunc func()

func SetShutdownFunc(f func()) {
	shutdownFunc = f
}

func Shutdown() {
	if shutdownFunc != nil {
		shutdownFunc()
		return
	}

	logrus.Info("No shutdown func set, exiting immediately")
	os.Exit(0)
}
