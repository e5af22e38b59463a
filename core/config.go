package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env          string
	Build        string
	Debug        bool
	TestMode     bool
	AppName      string
	SecretKey    string
	RollbarToken string

	Server struct {
		Address         string
		Host            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		JWTAudience     string
		JWTIssuer       string
	}

	Database struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	Redis struct {
		Addr       string
		Password   string
		DB         int
		StudentTTL time.Duration
	}

	Kafka struct {
		Brokers []string
		Topic   string
	}

	Fees struct {
		MaxReportDays int
	}
}

func (conf *Config) IsConfigured() bool {
	return conf.Database.Name != ""
}

// NewConfig loads the configuration of the current ENV (DEV by default) from env variables,
// optionally seeded from "config/.env.<env>".
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Bursar")
	v.SetDefault("secretKey", "c8s=1b!0k@_q5u7a#l^o2dxw&r*zm(v9yhen3ti$6pj4g+f")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverReadTimeout", 5*time.Second)
	v.SetDefault("serverWriteTimeout", 10*time.Second)
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtAudience", "Bursary")
	v.SetDefault("jwtIssuer", "Bursar")
	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", 5432)
	v.SetDefault("databaseName", "")
	v.SetDefault("databaseUser", "")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseDisableTLS", false)
	v.SetDefault("redisAddr", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)
	v.SetDefault("redisStudentTTL", 10*time.Minute)
	v.SetDefault("kafkaBrokers", "")
	v.SetDefault("kafkaTopic", "fees.payments")
	v.SetDefault("feesMaxReportDays", 366)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	conf.Env = env
	conf.Build = v.GetString("build")
	conf.Debug = v.GetBool("debug")
	conf.TestMode = v.GetBool("testMode")
	conf.AppName = v.GetString("appName")
	conf.SecretKey = v.GetString("secretKey")
	conf.RollbarToken = v.GetString("rollbarToken")

	conf.Server.Address = v.GetString("serverAddress")
	conf.Server.Host = v.GetString("serverHost")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ReadTimeout = v.GetDuration("serverReadTimeout")
	conf.Server.WriteTimeout = v.GetDuration("serverWriteTimeout")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Server.JWTAudience = v.GetString("jwtAudience")
	conf.Server.JWTIssuer = v.GetString("jwtIssuer")

	conf.Database.Engine = v.GetString("databaseEngine")
	conf.Database.Host = v.GetString("databaseHost")
	conf.Database.Port = v.GetInt("databasePort")
	conf.Database.Name = v.GetString("databaseName")
	conf.Database.User = v.GetString("databaseUser")
	conf.Database.Password = v.GetString("databasePassword")
	conf.Database.AdminUser = v.GetString("databaseAdminUser")
	conf.Database.AdminPassword = v.GetString("databaseAdminPassword")
	conf.Database.DisableTLS = v.GetBool("databaseDisableTLS")

	conf.Redis.Addr = v.GetString("redisAddr")
	conf.Redis.Password = v.GetString("redisPassword")
	conf.Redis.DB = v.GetInt("redisDB")
	conf.Redis.StudentTTL = v.GetDuration("redisStudentTTL")

	conf.Kafka.Brokers = splitList(v.GetString("kafkaBrokers"))
	conf.Kafka.Topic = v.GetString("kafkaTopic")

	conf.Fees.MaxReportDays = v.GetInt("feesMaxReportDays")

	return conf
}

// DatabaseAddress returns the "host:port" of the database server.
func (conf *Config) DatabaseAddress() string {
	return net.JoinHostPort(conf.Database.Host, strconv.Itoa(conf.Database.Port))
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
