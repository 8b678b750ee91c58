package journal

import (
	"fmt"
	"net/url"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// Options locates the journal database. ConnString wins over the other
// fields when set.
type Options struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// Open connects to postgres and migrates the journal tables.
func Open(opt Options) (*gorm.DB, error) {
	config := opt.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	}

	db, err := gorm.Open(postgres.Open(opt.DSN()), config)
	if err != nil {
		return nil, errors.Wrap(err, "open journal database")
	}
	if err := db.AutoMigrate(&TradeRecord{}, &AccountRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate journal tables")
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DSN renders the options as a postgres URL.
func (opt Options) DSN() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String()
}
