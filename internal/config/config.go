package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config drives the serve mode. Every field has an environment default so the
// service can run under a container runtime without flags.
type Config struct {
	HTTPAddr            string
	PayloadPreviewChars int
	PayloadOnly         bool
	DB                  DBConfig
	PubSub              PubSubConfig
}

// DBConfig selects the Postgres sink. Host is used for a direct connection;
// InstanceConnectionName routes through the Cloud SQL connector instead.
type DBConfig struct {
	User                   string
	Password               string
	Name                   string
	Host                   string
	InstanceConnectionName string
	PrivateIP              bool
	MaxConns               int32
}

// PubSubConfig selects the callback publisher.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Ordering  bool
}

// FromEnv reads the defaults.
func FromEnv() Config {
	return Config{
		HTTPAddr:            ":" + getenv("HTTPPORT", "8080"),
		PayloadPreviewChars: getenvInt("LOG_PAYLOAD_PREVIEW_CHARS", 32),
		PayloadOnly:         getenvBool("PAYLOAD_ONLY"),
		DB: DBConfig{
			User:                   os.Getenv("DB_USER"),
			Password:               os.Getenv("DB_PASSWORD"),
			Name:                   os.Getenv("DB_NAME"),
			Host:                   os.Getenv("DB_HOST"),
			InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
			PrivateIP:              os.Getenv("PRIVATE_IP") != "",
			MaxConns:               int32(getenvInt("DB_MAX_CONNS", 10)),
		},
		PubSub: PubSubConfig{
			ProjectID: os.Getenv("GCP_PROJECT_ID"),
			Topic:     os.Getenv("CALLBACK_TOPIC"),
			Ordering:  getenvBool("CALLBACK_ORDERING"),
		},
	}
}

// Enabled reports whether enough settings are present to open a connection.
func (c DBConfig) Enabled() bool {
	return c.User != "" && c.Name != "" && (c.Host != "" || c.InstanceConnectionName != "")
}

// DSN renders a keyword/value connection string. The host is left out when
// the Cloud SQL connector dials instead.
func (c DBConfig) DSN() string {
	parts := []string{
		"user=" + quote(c.User),
		"password=" + quote(c.Password),
		"database=" + quote(c.Name),
		"sslmode=disable",
	}
	if c.InstanceConnectionName == "" && c.Host != "" {
		parts = append(parts, "host="+quote(c.Host))
	}
	return strings.Join(parts, " ")
}

// Enabled reports whether a project and topic are configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Topic != ""
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, ` '\`) {
		return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(k string) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// String hides the password.
func (c DBConfig) String() string {
	target := c.Host
	if c.InstanceConnectionName != "" {
		target = "cloudsql:" + c.InstanceConnectionName
	}
	return fmt.Sprintf("%s@%s/%s", c.User, target, c.Name)
}
