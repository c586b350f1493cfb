package systemd

import (
	"testing"
	"time"
)

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	if IsSystemdService() {
		t.Fatal("Expected not to be running under systemd")
	}
	if err := NotifyReady(); err != nil {
		t.Errorf("NotifyReady failed: %v", err)
	}
	if err := NotifyWatchdog(); err != nil {
		t.Errorf("NotifyWatchdog failed: %v", err)
	}
	if err := NotifyStopping(); err != nil {
		t.Errorf("NotifyStopping failed: %v", err)
	}
}

func TestIsSystemdService(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "/run/systemd/notify")
	if !IsSystemdService() {
		t.Error("Expected to detect systemd from NOTIFY_SOCKET")
	}
}

func TestWatchdogInterval(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")
	if got := WatchdogInterval(); got != 0 {
		t.Errorf("Expected watchdog disabled, got %v", got)
	}

	t.Setenv("WATCHDOG_USEC", "10000000")
	if got := WatchdogInterval(); got != 5*time.Second {
		t.Errorf("Expected 5s, got %v", got)
	}
}

func TestGetListenersWithoutActivation(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if listeners.Activated || listeners.Metrics != nil {
		t.Errorf("Expected no activated listeners, got %+v", listeners)
	}
}
