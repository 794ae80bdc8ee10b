package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 5*time.Second {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", "alpha, beta ,,gamma")
	got := envList("TEST_LIST")
	if len(got) != 3 || got[0] != "alpha" || got[1] != "beta" || got[2] != "gamma" {
		t.Fatalf("unexpected list: %#v", got)
	}
	if envList("TEST_LIST_MISSING") != nil {
		t.Fatal("expected nil for unset list")
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("MONBAN_QUESTION_COUNT", "abc")
	t.Setenv("MONBAN_ANSWER_TIMEOUT", "three-minutes")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "MONBAN_QUESTION_COUNT") {
		t.Fatalf("error should mention MONBAN_QUESTION_COUNT, got: %s", got)
	}
	if !strings.Contains(got, "MONBAN_ANSWER_TIMEOUT") {
		t.Fatalf("error should mention MONBAN_ANSWER_TIMEOUT, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.QuestionCount != 10 {
		t.Fatalf("expected default question count 10, got %d", cfg.QuestionCount)
	}
	if cfg.PassScore != 60 {
		t.Fatalf("expected default pass score 60, got %d", cfg.PassScore)
	}
	if cfg.AnswerTimeout != 3*time.Minute {
		t.Fatalf("expected default answer timeout 3m, got %s", cfg.AnswerTimeout)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected default driver sqlite, got %s", cfg.DBDriver)
	}
}

func TestValidateRejectsBadDriver(t *testing.T) {
	t.Setenv("MONBAN_DB_DRIVER", "oracle")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "MONBAN_DB_DRIVER") {
		t.Fatalf("expected driver validation error, got: %v", err)
	}
}

func TestValidateRejectsPassScoreOutOfRange(t *testing.T) {
	t.Setenv("MONBAN_QUESTION_COUNT", "3")
	t.Setenv("MONBAN_PASS_SCORE", "31")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "MONBAN_PASS_SCORE") {
		t.Fatalf("expected pass score validation error, got: %v", err)
	}
}

func TestValidateRejectsTemplateWithoutPlaceholder(t *testing.T) {
	t.Setenv("MONBAN_CMD_ADD", "whitelist add steve")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "MONBAN_CMD_ADD") {
		t.Fatalf("expected template validation error, got: %v", err)
	}
}

func TestChannelAllowed(t *testing.T) {
	c := Config{}
	if !c.ChannelAllowed("anything") {
		t.Fatal("empty allow-list should authorize every channel")
	}
	c.AllowedChannels = []string{"g1", "g2"}
	if !c.ChannelAllowed("g1") || c.ChannelAllowed("g3") {
		t.Fatal("allow-list not enforced")
	}
}

func TestIsAdmin(t *testing.T) {
	c := Config{Admins: []string{"op1"}}
	if !c.IsAdmin("op1") {
		t.Fatal("op1 should be admin")
	}
	if c.IsAdmin("op2") {
		t.Fatal("op2 should not be admin")
	}
}
