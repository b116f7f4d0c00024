package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpool/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"trace", log.TraceLevel},
		{"DEBUG", log.DebugLevel},
		{" info ", log.InfoLevel},
		{"warning", log.WarnLevel},
		{"", log.ErrorLevel},
		{"verbose", log.ErrorLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitLogger(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	InitLogger(&config.Config{LogLevel: "debug"})
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
}
