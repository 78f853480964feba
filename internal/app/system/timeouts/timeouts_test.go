package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/travelsync/internal/app/system/timeouts"
	"go.uber.org/zap"
)

func TestDefaults(t *testing.T) {
	timeouts.Reset()
	if timeouts.Short() != timeouts.DefaultShort {
		t.Errorf("Short: got %v, want %v", timeouts.Short(), timeouts.DefaultShort)
	}
	if timeouts.Long() != timeouts.DefaultLong {
		t.Errorf("Long: got %v, want %v", timeouts.Long(), timeouts.DefaultLong)
	}
}

func TestConfigure_IgnoresZero(t *testing.T) {
	timeouts.Reset()
	defer timeouts.Reset()

	timeouts.Configure(timeouts.Config{Short: time.Second})
	got := timeouts.Current()
	if got.Short != time.Second {
		t.Errorf("Short: got %v, want 1s", got.Short)
	}
	if got.Medium != timeouts.DefaultMedium {
		t.Errorf("Medium should keep default, got %v", got.Medium)
	}
}

func TestConfigureFromEnv(t *testing.T) {
	timeouts.Reset()
	defer timeouts.Reset()

	t.Setenv("TRAVELSYNC_TIMEOUT_PING", "750ms")
	t.Setenv("TRAVELSYNC_TIMEOUT_MEDIUM", "bogus")
	t.Setenv("TRAVELSYNC_TIMEOUT_LONG", "-5s")

	if n := timeouts.ConfigureFromEnv(); n != 1 {
		t.Errorf("configured: got %d, want 1", n)
	}
	if timeouts.Ping() != 750*time.Millisecond {
		t.Errorf("Ping: got %v", timeouts.Ping())
	}
	if timeouts.Medium() != timeouts.DefaultMedium {
		t.Errorf("Medium: got %v", timeouts.Medium())
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	<-ctx.Done()
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", ctx.Err())
	}
}
