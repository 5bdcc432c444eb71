package app

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PAYDESK_DATABASE_URL", "postgres://localhost:5432/paydesk")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel=%q", cfg.LogLevel)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Fatalf("ReadTimeout=%v", cfg.ReadTimeout)
	}
	if cfg.DBMaxConns != 10 {
		t.Fatalf("DBMaxConns=%d", cfg.DBMaxConns)
	}
	if !cfg.ReadinessRequireDB {
		t.Fatalf("ReadinessRequireDB must default to true")
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("KafkaBrokers=%v, want empty", cfg.KafkaBrokers)
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("MetricsEnabled must default to true")
	}
}

func TestLoadConfig_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("PAYDESK_DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected validation error without PAYDESK_DATABASE_URL")
	}
}

func TestLoadConfig_RejectsBadLogLevel(t *testing.T) {
	t.Setenv("PAYDESK_DATABASE_URL", "postgres://localhost:5432/paydesk")
	t.Setenv("PAYDESK_LOG_LEVEL", "loud")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected validation error for unknown log level")
	}
}

func TestLoadConfig_KafkaBrokerList(t *testing.T) {
	t.Setenv("PAYDESK_DATABASE_URL", "postgres://localhost:5432/paydesk")
	t.Setenv("PAYDESK_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "k1:9092" {
		t.Fatalf("KafkaBrokers=%v", cfg.KafkaBrokers)
	}
}
