package authcore_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuilderRequiresCollaborators(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tests := []struct {
		name    string
		builder *authcore.Builder
		wantErr string
	}{
		{
			name:    "no redis",
			builder: authcore.New().WithConfig(testConfig()).WithCredentialStore(memory.New()).WithEmailSender(&recordingMailer{}),
			wantErr: "redis",
		},
		{
			name:    "no store",
			builder: authcore.New().WithConfig(testConfig()).WithRedis(rdb).WithEmailSender(&recordingMailer{}),
			wantErr: "credential store",
		},
		{
			name:    "no mailer",
			builder: authcore.New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(memory.New()),
			wantErr: "email sender",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder.Build()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := authcore.New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithCredentialStore(memory.New()).
		WithEmailSender(&recordingMailer{})

	e, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer e.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.Lockout.Threshold = 0

	_, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(memory.New()).
		WithEmailSender(&recordingMailer{}).
		Build()
	if err == nil {
		t.Fatal("expected config error")
	}
}

func TestBuilderMetricsOverridesAndLogger(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	var buf bytes.Buffer
	engine, err := authcore.New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithCredentialStore(memory.New()).
		WithEmailSender(&recordingMailer{}).
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))).
		WithMetricsEnabled(true).
		WithLatencyHistograms(false).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	if engine.Config().Metrics.EnableLatencyHistograms {
		t.Fatal("WithLatencyHistograms(false) ignored")
	}
	if len(engine.MetricsSnapshot().Histograms) != 0 {
		t.Fatal("histograms reported while disabled")
	}

	mr.Close()
	_, err = engine.ForgotPassword(authcore.WithClientIP(context.Background(), "198.51.100.1"), "alice@x.com")
	if !errors.Is(err, authcore.ErrInternal) {
		t.Fatalf("expected internal error with redis down, got %v", err)
	}
	if !strings.Contains(buf.String(), "auth operation failed") {
		t.Fatalf("failure not logged through WithLogger: %q", buf.String())
	}
}
