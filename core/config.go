package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendDrive  = "drive"
	BackendB2     = "b2"
	BackendSQL    = "sql"
)

type (
	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		DisableReqLogs  bool
		ShutdownTimeout time.Duration
		MaxUploadSize   int64
	}

	DriveConfig struct {
		CredentialsFile string
		CredentialsJSON string
		MaxRetries      int
	}

	B2Config struct {
		AccountID string
		AppKey    string
		Bucket    string
	}

	SQLConfig struct {
		Driver string // postgres | sqlite
		DSN    string
	}

	StoreConfig struct {
		Backend      string
		RootFolder   string
		DocumentName string
		StrictLoad   bool
		Drive        DriveConfig
		B2           B2Config
		SQL          SQLConfig
	}

	CacheConfig struct {
		TTL  time.Duration
		Path string // bbolt file; in-memory cache when empty
	}

	SessionConfig struct {
		TTL          time.Duration
		RefreshBelow time.Duration
	}

	AuthConfig struct {
		BootstrapUsername     string
		BootstrapPassword     string
		BootstrapPasswordHash string
		BootstrapFullName     string
		DefaultPassword       string
		AllowDefaultReset     bool
		PasswordResetTimeout  time.Duration
	}

	Config struct {
		AppName          string
		Build            string
		Env              string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail mail.Address
		NotifyEmails     []mail.Address

		Server  ServerConfig
		Store   StoreConfig
		Cache   CacheConfig
		Session SessionConfig
		Auth    AuthConfig
	}
)

// NewConfig reads the configuration from the environment.
// Variables are prefixed with the value of ENV (DEV by default), e.g. DEV_STORE_BACKEND.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("appName", "ClassDrive")
	conf.SetDefault("build", "develop")
	conf.SetDefault("debug", true)
	conf.SetDefault("secretKey", "k2#x9$tq!-m7@f0w+zr8(bv5)y^n3&ud1*le6=gh4ops")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("notifyEmails", "")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.disableReqLogs", false)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.maxUploadSize", int64(32<<20))

	conf.SetDefault("store.backend", BackendMemory)
	conf.SetDefault("store.rootFolder", "CLASSDRIVE_DATA")
	conf.SetDefault("store.documentName", "database.json")
	conf.SetDefault("store.strictLoad", false)
	conf.SetDefault("store.drive.credentialsFile", "")
	conf.SetDefault("store.drive.credentialsJson", "")
	conf.SetDefault("store.drive.maxRetries", 0)
	conf.SetDefault("store.b2.accountId", "")
	conf.SetDefault("store.b2.appKey", "")
	conf.SetDefault("store.b2.bucket", "")
	conf.SetDefault("store.sql.driver", "sqlite")
	conf.SetDefault("store.sql.dsn", "classdrive.db")

	conf.SetDefault("cache.ttl", 10*time.Minute)
	conf.SetDefault("cache.path", "")

	conf.SetDefault("session.ttl", 12*time.Hour)
	conf.SetDefault("session.refreshBelow", 10*time.Hour)

	conf.SetDefault("auth.bootstrapUsername", "teacher")
	conf.SetDefault("auth.bootstrapPassword", "Teacher2025@")
	conf.SetDefault("auth.bootstrapPasswordHash", "")
	conf.SetDefault("auth.bootstrapFullName", "Administrator")
	conf.SetDefault("auth.defaultPassword", "hocSinh2025")
	conf.SetDefault("auth.allowDefaultReset", true)
	conf.SetDefault("auth.passwordResetTimeout", 3*24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Build:            conf.GetString("build"),
		Env:              env,
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		WorkDir:          wd,
		SecretKey:        conf.GetString("secretKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		SendgridAPIKey:   conf.GetString("sendgridApiKey"),
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		NotifyEmails:     parseAddresses(conf.GetString("notifyEmails")),
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			Address:         conf.GetString("server.address"),
			DebugHost:       conf.GetString("server.debugHost"),
			DisableReqLogs:  conf.GetBool("server.disableReqLogs"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
			MaxUploadSize:   conf.GetInt64("server.maxUploadSize"),
		},
		Store: StoreConfig{
			Backend:      strings.ToLower(conf.GetString("store.backend")),
			RootFolder:   conf.GetString("store.rootFolder"),
			DocumentName: conf.GetString("store.documentName"),
			StrictLoad:   conf.GetBool("store.strictLoad"),
			Drive: DriveConfig{
				CredentialsFile: conf.GetString("store.drive.credentialsFile"),
				CredentialsJSON: conf.GetString("store.drive.credentialsJson"),
				MaxRetries:      conf.GetInt("store.drive.maxRetries"),
			},
			B2: B2Config{
				AccountID: conf.GetString("store.b2.accountId"),
				AppKey:    conf.GetString("store.b2.appKey"),
				Bucket:    conf.GetString("store.b2.bucket"),
			},
			SQL: SQLConfig{
				Driver: conf.GetString("store.sql.driver"),
				DSN:    conf.GetString("store.sql.dsn"),
			},
		},
		Cache: CacheConfig{
			TTL:  conf.GetDuration("cache.ttl"),
			Path: conf.GetString("cache.path"),
		},
		Session: SessionConfig{
			TTL:          conf.GetDuration("session.ttl"),
			RefreshBelow: conf.GetDuration("session.refreshBelow"),
		},
		Auth: AuthConfig{
			BootstrapUsername:     conf.GetString("auth.bootstrapUsername"),
			BootstrapPassword:     conf.GetString("auth.bootstrapPassword"),
			BootstrapPasswordHash: conf.GetString("auth.bootstrapPasswordHash"),
			BootstrapFullName:     conf.GetString("auth.bootstrapFullName"),
			DefaultPassword:       conf.GetString("auth.defaultPassword"),
			AllowDefaultReset:     conf.GetBool("auth.allowDefaultReset"),
			PasswordResetTimeout:  conf.GetDuration("auth.passwordResetTimeout"),
		},
	}
}

// parseAddresses parses a comma separated list of addresses, skipping invalid ones.
func parseAddresses(list string) []mail.Address {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(list)
	if err != nil {
		log.Printf("config.parseAddresses(%q): %v", list, err)
		return nil
	}
	addrs := make([]mail.Address, 0, len(parsed))
	for _, a := range parsed {
		addrs = append(addrs, *a)
	}
	return addrs
}
