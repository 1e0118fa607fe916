package config

import "testing"

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db.internal", Port: "5433", User: "app", Password: "pw",
		DBName: "acadlive", SSLMode: "require",
	}
	want := "postgres://app:pw@db.internal:5433/acadlive?sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	cfg.URL = "postgres://override/everything"
	if got := cfg.DSN(); got != cfg.URL {
		t.Errorf("DSN() = %q, want the explicit URL", got)
	}
}

func TestSigningSecret(t *testing.T) {
	c := ConferenceConfig{TokenSecret: "dedicated"}
	if secret, dedicated := c.SigningSecret("platform"); secret != "dedicated" || !dedicated {
		t.Errorf("SigningSecret = %q/%v, want dedicated key", secret, dedicated)
	}

	c.TokenSecret = ""
	if secret, dedicated := c.SigningSecret("platform"); secret != "platform" || dedicated {
		t.Errorf("SigningSecret = %q/%v, want platform fallback", secret, dedicated)
	}
}

func TestLoadPoolSettings(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("DB_MIN_CONNS", "5")
	t.Setenv("REDIS_POOL_SIZE", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.MaxConns != 25 || cfg.Database.MinConns != 5 {
		t.Errorf("db pool = %d/%d, want 25/5", cfg.Database.MaxConns, cfg.Database.MinConns)
	}
	if cfg.Redis.PoolSize != 8 {
		t.Errorf("redis pool size = %d, want 8", cfg.Redis.PoolSize)
	}
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("max conns = %d, want default 10", cfg.Database.MaxConns)
	}
}
