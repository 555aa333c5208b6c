package log

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sync"
)

const (
	// Log absolutely nothing
	LOGLEVEL_NONE int = iota
	// Log situations that are not expected to happen and
	// are difficult to handle (e.g. a connection generation dying with requests outstanding)
	LOGLEVEL_ERRORS
	// Log non-critical situations that might happen, but shouldn't (e.g. a dropped watch event)
	LOGLEVEL_WARNINGS
	// Log situations that are expected, but important for the operation (session established, reconnects)
	LOGLEVEL_INFO
	// Log everything, including every frame
	LOGLEVEL_DEBUG
)

func init() {
	logger = log.New(os.Stderr, "zkmux ", logger_flags)
}

var (
	mx       sync.RWMutex
	logger   *log.Logger
	loglevel int = LOGLEVEL_WARNINGS
)

const logger_flags = log.LstdFlags | log.Lmicroseconds

var loglevel_strings []string = []string{"[NON]", "[ERR]", "[WRN]", "[INF]", "[DBG]"}

func loglevel_to_string(ll int) string {
	if ll < 0 || ll >= len(loglevel_strings) {
		return "[???]"
	}
	return loglevel_strings[ll]
}

// Set the global log level
func SetLoglevel(ll int) {
	mx.Lock()
	defer mx.Unlock()
	loglevel = ll
}

// Redirect all log output to w.
func SetOutput(w io.Writer) {
	mx.Lock()
	defer mx.Unlock()
	logger = log.New(w, logger.Prefix(), logger_flags)
}

// Performance-enhancer: Prevent unnecessary log calls
func IsLoggingEnabled(ll int) bool {
	mx.RLock()
	defer mx.RUnlock()
	return loglevel >= ll
}

func ZK_log(ll int, what ...interface{}) {
	mx.RLock()
	defer mx.RUnlock()
	if ll <= loglevel {
		logger.Printf("%s: %s", loglevel_to_string(ll), fmt.Sprintln(what...))
	}
}

func mapToChar(i int) byte {
	i = i % (10 + 26 + 26)
	if i < 10 {
		return byte('0' + i)
	} else if i < 10+26 {
		return byte('A' + i - 10)
	} else if i < 10+26+26 {
		return byte('a' + i - 10 - 26)
	}
	return byte('_')
}

// Returns a short random alphanumeric string.
// This is used to tag a connection generation in order to track it across log lines.
func GetLogToken() string {
	str := make([]byte, 6)
	for i := range str {
		str[i] = mapToChar(rand.Int())
	}
	return string(str)
}
