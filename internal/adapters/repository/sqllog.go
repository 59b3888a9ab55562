package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/sudea/pkg/logger"
)

// sqlLogger routes gorm diagnostics to the service logger. Statements are
// logged at debug, slow ones at warn and failures at error. Missing rows
// are not failures.
type sqlLogger struct {
	log   logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newSQLLogger(l logger.Logger, slow time.Duration) gormlogger.Interface {
	return &sqlLogger{log: l, slow: slow, level: gormlogger.Warn}
}

func (l *sqlLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *sqlLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *sqlLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *sqlLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *sqlLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		query, rows := fc()
		l.log.Error(ctx, "sql failed", logger.String("sql", query), logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed), logger.Error(err))
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		query, rows := fc()
		l.log.Warn(ctx, "slow sql", logger.String("sql", query), logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		query, rows := fc()
		l.log.Debug(ctx, "sql", logger.String("sql", query), logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed))
	}
}
