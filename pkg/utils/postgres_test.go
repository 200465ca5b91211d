package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	cfg := PostgresPoolConfig{}.withDefaults()

	if cfg.MaxOpenConns != 25 || cfg.MaxIdleConns != 25 {
		t.Fatalf("conn limits: %+v", cfg)
	}
	if cfg.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("lifetime = %v", cfg.ConnMaxLifetime)
	}
	if cfg.PingTimeout != 5*time.Second {
		t.Fatalf("ping timeout = %v", cfg.PingTimeout)
	}
}

func TestPostgresPoolExplicitValuesKept(t *testing.T) {
	in := PostgresPoolConfig{MaxOpenConns: 4, PingTimeout: time.Second}
	cfg := in.withDefaults()
	if cfg.MaxOpenConns != 4 || cfg.PingTimeout != time.Second {
		t.Fatalf("explicit values overridden: %+v", cfg)
	}
}
