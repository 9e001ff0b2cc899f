package logsvc

import (
	"log"
	"os"
	"strconv"

	"github.com/danileyton/epicereport-sub000/core"
)

// New returns the logger for the current environment: Rollbar in QA and PROD when a
// token is configured, zerolog console output otherwise.
func New(prefix string, conf *core.Config) core.Logger {
	if conf.RollbarToken != "" && (conf.Env == "QA" || conf.Env == "PROD") {
		std := log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
		return NewRollbarLogger(std, conf)
	}
	return NewConsoleLogger(os.Stderr, conf)
}

// actorField is the log field holding the acting LMS user id.
const actorField = "actor"

// Close flushes loggers that buffer events.
func Close(logger core.Logger) {
	if c, ok := logger.(interface{ Close() }); ok {
		c.Close()
	}
}

func strconv64(id int64) string {
	return strconv.FormatInt(id, 10)
}
