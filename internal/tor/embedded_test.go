package tor

import (
	"errors"
	"testing"
	"time"
)

func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("uses defaults", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if e.startupTimeout != DefaultStartupTimeout {
			t.Errorf("expected default timeout, got %v", e.startupTimeout)
		}
		if e.listenSocks != ":0" {
			t.Errorf("expected random SOCKS port, got %q", e.listenSocks)
		}
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor(WithStartupTimeout(5*time.Minute), WithListenAddr("127.0.0.1:9050"))
		if e.startupTimeout != 5*time.Minute {
			t.Errorf("expected timeout 5m, got %v", e.startupTimeout)
		}
		if e.listenSocks != "127.0.0.1:9050" {
			t.Errorf("expected pinned listener, got %q", e.listenSocks)
		}
	})

	t.Run("zero values leave defaults", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor(WithStartupTimeout(0), WithListenAddr(""))
		if e.startupTimeout != DefaultStartupTimeout || e.listenSocks != ":0" {
			t.Errorf("unexpected configuration: %v %q", e.startupTimeout, e.listenSocks)
		}
	})
}

func TestEmbeddedTorBeforeStart(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor()

	if e.IsRunning() {
		t.Error("expected daemon not to be running")
	}
	if e.SocksAddr() != "" || e.ControlAddr() != "" {
		t.Error("expected empty addresses before start")
	}
	if _, err := e.Client(time.Second); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("expected Stop on unstarted daemon to succeed, got %v", err)
	}
}
