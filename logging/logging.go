// Package logging provides the structured, leveled logger used by every
// other package. Call sites pass a Module tag plus key/value pairs, mirroring
// the convention logging.Info(msg, module, "key", val, ...).
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Module tags the subsystem emitting a log line.
type Module string

const (
	ModulePoC        Module = "poc"
	ModuleDerivation Module = "derivation"
	ModuleStore      Module = "store"
	ModuleFilter     Module = "addr_filter"
	ModuleChain      Module = "chain"
	ModuleTx         Module = "tx"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// SetOutput redirects all subsequent logging to w in JSON form. Intended for
// production wiring in cmd/pocmanager, where ConsoleWriter's human-readable
// output is traded for machine-parseable JSON.
func SetOutput(w zerolog.Logger) {
	logger = w
}

func with(module Module, kv []interface{}) *zerolog.Event {
	return func(ev *zerolog.Event) *zerolog.Event {
		ev = ev.Str("module", string(module))
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			ev = ev.Interface(key, kv[i+1])
		}
		return ev
	}(zerolog.Dict())
}

func Debug(msg string, module Module, kv ...interface{}) {
	logger.Debug().Dict("fields", with(module, kv)).Msg(msg)
}

func Info(msg string, module Module, kv ...interface{}) {
	logger.Info().Dict("fields", with(module, kv)).Msg(msg)
}

func Warn(msg string, module Module, kv ...interface{}) {
	logger.Warn().Dict("fields", with(module, kv)).Msg(msg)
}

func Error(msg string, module Module, kv ...interface{}) {
	logger.Error().Dict("fields", with(module, kv)).Msg(msg)
}
