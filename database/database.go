package database

import (
	"context"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "github.com/lib/pq"
)

const EmbeddedHost = "embedded"

type Database struct {
	host       string
	username   string
	password   string
	database   string
	port       uint32
	dataPath   string
	keepAlive  bool
	connection *embeddedpostgres.EmbeddedPostgres
	orm        *gorm.DB
	now        func() time.Time
}

// NewDatabase connects to postgres. With host "embedded" a local postgres is
// started under dataPath first. The returned func closes the connection and
// stops the embedded server unless keepAlive is set.
func NewDatabase(username, password, database string, port uint32, dataPath, host string, keepAlive bool) (*Database, func() error, error) {
	models.RegisterSerializers()

	db := &Database{
		host:      host,
		username:  username,
		password:  password,
		database:  database,
		port:      port,
		dataPath:  dataPath,
		keepAlive: keepAlive,
		now:       time.Now,
	}

	if db.IsEmbedded() {
		if err := db.startEmbedded(); err != nil {
			return nil, nil, err
		}
	}

	orm, err := gorm.Open(postgres.Open(db.GetConnectionURL()), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return db.now().UTC()
		},
	})
	if err != nil {
		return nil, nil, multierr.Append(fmt.Errorf("failed to open gorm connection: %w", err), db.stopEmbedded())
	}
	db.orm = orm

	return db, db.close, nil
}

func (d *Database) IsEmbedded() bool {
	return d.host == EmbeddedHost
}

func (d *Database) GetConnectionURL() string {
	host := d.host
	if d.IsEmbedded() {
		host = "localhost"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.username, d.password, host, d.port, d.database)
}

func (d *Database) ORM() *gorm.DB {
	return d.orm
}

func (d *Database) startEmbedded() error {
	d.connection = embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Username(d.username).
			Password(d.password).
			Database(d.database).
			Port(d.port).
			DataPath(d.dataPath).
			Logger(log.StandardLogger().WriterLevel(log.DebugLevel)),
	)

	if err := d.connection.Start(); err != nil {
		return fmt.Errorf("failed to start embedded database: %w", err)
	}
	log.Info("✅ Embedded database started")

	return nil
}

func (d *Database) stopEmbedded() error {
	if d.connection == nil || d.keepAlive {
		return nil
	}
	if err := d.connection.Stop(); err != nil {
		return fmt.Errorf("failed to stop embedded database: %w", err)
	}
	log.Info("🛑 Embedded database stopped")

	return nil
}

func (d *Database) close() error {
	var err error
	if d.orm != nil {
		sqlDB, dbErr := d.orm.DB()
		if dbErr != nil {
			err = multierr.Append(err, dbErr)
		} else {
			err = multierr.Append(err, sqlDB.Close())
		}
	}

	return multierr.Append(err, d.stopEmbedded())
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.orm.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}
