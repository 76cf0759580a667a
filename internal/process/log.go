package process

import (
	"sync"

	"proc_exporter/internal/logger"

	"github.com/phuslu/log"
)

// plog is resolved on first use so that it picks up the logging
// configuration applied at startup.
var plog = sync.OnceValue(func() *log.Logger {
	l := logger.NewLoggerWithContext("process")
	return &l
})
