package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpool/internal/config"
)

// InitLogger sets the log level and format based on the provided configuration
func InitLogger(cfg *config.Config) {
	log.SetLevel(parseLevel(cfg.LogLevel))
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

// InitFromEnv initializes logging from environment variables
func InitFromEnv() {
	log.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
}

// parseLevel maps a level name to a logrus level. Unknown names fall back to error.
func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	default:
		return log.ErrorLevel
	}
}

func init() {
	InitFromEnv()
}
