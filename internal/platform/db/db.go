package db

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const (
	driverName     = "mysql"
	ConfigFilePath = "config/config.yaml"

	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // mysql | memory
}

// 勤務シフト。ポインタは「未設定なら既定値」を区別するため
type AttendanceConfig struct {
	TimezoneOffset string `yaml:"timezone_offset"` // "+05:00"
	ScheduledStart string `yaml:"scheduled_start"` // "09:00"
	GraceMinutes   *int   `yaml:"grace_minutes"`
	ShiftMinutes   *int   `yaml:"shift_minutes"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AdminID       string        `yaml:"admin_id"` // 起動時に作成する管理者
	AdminPassword string        `yaml:"admin_password"`
}

type Config struct {
	Version     string           `yaml:"version"`
	Mode        string           `yaml:"mode"`
	Server      ServerConfig     `yaml:"server"`
	DB          DatabaseConfig   `yaml:"database"`
	Certificate Certs            `yaml:"certificate"`
	Store       StoreConfig      `yaml:"store"`
	Attendance  AttendanceConfig `yaml:"attendance"`
	Auth        AuthConfig       `yaml:"auth"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMySQL
	}
	if c.Attendance.TimezoneOffset == "" {
		c.Attendance.TimezoneOffset = "+05:00"
	}
	if c.Attendance.ScheduledStart == "" {
		c.Attendance.ScheduledStart = "09:00"
	}
	if c.Attendance.GraceMinutes == nil {
		v := 30
		c.Attendance.GraceMinutes = &v
	}
	if c.Attendance.ShiftMinutes == nil {
		v := 540
		c.Attendance.ShiftMinutes = &v
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
}

func (c *Config) validate() error {
	var invalid []string
	if c.Mode != "dev" && c.Mode != "release" {
		invalid = append(invalid, "mode")
	}
	if c.Store.Driver != StoreMySQL && c.Store.Driver != StoreMemory {
		invalid = append(invalid, "store.driver")
	}
	if *c.Attendance.GraceMinutes < 0 {
		invalid = append(invalid, "attendance.grace_minutes")
	}
	if *c.Attendance.ShiftMinutes <= 0 {
		invalid = append(invalid, "attendance.shift_minutes")
	}
	if c.Mode == "release" && c.Auth.JWTSecret == "" {
		invalid = append(invalid, "auth.jwt_secret")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("設定値が不正です: %s", strings.Join(invalid, ", "))
	}
	return nil
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(40)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
