package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"tip-dispatcher/internal/domain"
)

func TestOutcomeLevels(t *testing.T) {
	tests := []struct {
		name      string
		out       domain.Outcome
		err       error
		wantLevel string
	}{
		{name: "logged", out: domain.Outcome{State: domain.StateLogged}, wantLevel: "info"},
		{name: "empty", out: domain.Outcome{State: domain.StateEmpty}, wantLevel: "warn"},
		{name: "dispatch", out: domain.Outcome{State: domain.StateFailed}, err: fmt.Errorf("%w: boom", domain.ErrDispatch), wantLevel: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, "prod")
			Outcome(logger, "worker", tt.out, tt.err)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("разбор записи лога: %v", err)
			}
			if entry["level"] != tt.wantLevel {
				t.Fatalf("ожидали уровень %s, получили %v", tt.wantLevel, entry["level"])
			}
			if entry["state"] != string(tt.out.State) {
				t.Fatalf("неожиданное поле state: %v", entry["state"])
			}
		})
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	prodLogger := New(&buf, "prod")
	prodLogger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatal("debug должен быть выключен вне dev")
	}
	devLogger := New(&buf, "dev")
	devLogger.Debug().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("debug должен быть включён в dev")
	}
}
