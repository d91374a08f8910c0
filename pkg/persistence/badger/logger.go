package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLoggerAdapter routes badger logs through zap. Badger's info output is
// chatty compaction noise, so it is demoted to debug.
type badgerLoggerAdapter struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func (b *badgerLoggerAdapter) log(level func(string, ...zap.Field), format string, args ...interface{}) {
	level(strings.TrimSpace(fmt.Sprintf(format, args...)), zap.String("component", "badger"))
}

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.log(b.logger.Error, format, args...)
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.log(b.logger.Warn, format, args...)
}

func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.log(b.logger.Debug, format, args...)
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.log(b.logger.Debug, format, args...)
}
