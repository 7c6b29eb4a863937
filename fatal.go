package serial

import (
	"fmt"
	"reflect"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
)

var pkgLogger atomic.Pointer[zap.Logger]

// SetLogger replaces the logger used for diagnostics. A nil logger restores
// the default, the global zap logger.
func SetLogger(l *zap.Logger) {
	if l != nil {
		l = l.Named("serial")
	}
	pkgLogger.Store(l)
}

func logger() *zap.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return zap.L().Named("serial")
}

// FatalError describes a broken static invariant: a type that cannot be
// traversed or reconstructed, or a registry lookup that can only fail when
// writer and reader were built with different type registrations.
// It is raised with panic and is not meant to be recovered from.
type FatalError struct {
	Condition string
	Reason    string
	File      string
	Line      int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("serial: assertion %q failed at %s:%d: %s", e.Condition, e.File, e.Line, e.Reason)
}

// fatalf logs full diagnostic context and panics with a *FatalError.
func fatalf(condition, format string, args ...any) {
	_, file, line, _ := runtime.Caller(1)
	err := &FatalError{
		Condition: condition,
		Reason:    fmt.Sprintf(format, args...),
		File:      file,
		Line:      line,
	}
	logger().Error("fatal serialization error",
		zap.String("condition", err.Condition),
		zap.String("file", err.File),
		zap.Int("line", err.Line),
		zap.String("reason", err.Reason),
	)
	panic(err)
}

func zapType(t reflect.Type) zap.Field {
	return zap.String("type", typeName(t))
}
