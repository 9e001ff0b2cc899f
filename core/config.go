package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite file
		BusyTimeout   time.Duration
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	RunnerConfig struct {
		Spec       string // robfig/cron spec of the polling trigger
		Workers    int    // parallel sends per firing
		LockTTL    time.Duration
		SendRate   float64 // messages per second, 0 = unlimited
		MaxRetries int
	}

	LMSConfig struct {
		TablePrefix string
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromName  string
		DefaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string
		Timezone         string

		Database DatabaseConfig
		Server   ServerConfig
		Runner   RunnerConfig
		LMS      LMSConfig
	}
)

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Epicereport")
	conf.SetDefault("build", "dev")
	conf.SetDefault("frontendBaseURL", "http://localhost")
	conf.SetDefault("defaultFromName", "Epicereport")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("timezone", "UTC")

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbName", "epicereport")
	conf.SetDefault("dbUser", "epicereport")
	conf.SetDefault("dbPassword", "")
	conf.SetDefault("dbAdminUser", "")
	conf.SetDefault("dbAdminPassword", "")
	conf.SetDefault("dbDisableTLS", true)
	conf.SetDefault("dbPath", "./data/epicereport.db")
	conf.SetDefault("dbBusyTimeout", 5*time.Second)

	conf.SetDefault("serverHost", ":8000")
	conf.SetDefault("serverDebugHost", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)

	conf.SetDefault("runnerSpec", "@every 5m")
	conf.SetDefault("runnerWorkers", 4)
	conf.SetDefault("runnerLockTTL", 60*time.Minute)
	conf.SetDefault("runnerSendRate", 0.0)
	conf.SetDefault("runnerMaxRetries", 3)

	conf.SetDefault("lmsTablePrefix", "mdl_")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

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
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		WorkDir:          wd,
		FrontendBaseURL:  strings.TrimRight(conf.GetString("frontendBaseURL"), "/"),
		DefaultFromName:  conf.GetString("defaultFromName"),
		DefaultFromEmail: conf.GetString("defaultFromEmail"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		Timezone:         conf.GetString("timezone"),
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
			Path:          conf.GetString("dbPath"),
			BusyTimeout:   conf.GetDuration("dbBusyTimeout"),
		},
		Server: ServerConfig{
			Host:            conf.GetString("serverHost"),
			DebugHost:       conf.GetString("serverDebugHost"),
			ShutdownTimeout: conf.GetDuration("serverShutdownTimeout"),
		},
		Runner: RunnerConfig{
			Spec:       conf.GetString("runnerSpec"),
			Workers:    conf.GetInt("runnerWorkers"),
			LockTTL:    conf.GetDuration("runnerLockTTL"),
			SendRate:   conf.GetFloat64("runnerSendRate"),
			MaxRetries: conf.GetInt("runnerMaxRetries"),
		},
		LMS: LMSConfig{
			TablePrefix: conf.GetString("lmsTablePrefix"),
		},
	}
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

func (conf *Config) DefaultFrom() mail.Address {
	return mail.Address{Name: conf.DefaultFromName, Address: conf.DefaultFromEmail}
}

// Location returns the site timezone used for every calendar computation.
// Unknown zones fall back to UTC.
func (conf *Config) Location() *time.Location {
	if conf.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
