package safe

import (
	"fmt"
	"reflect"

	"PPClient/logger"
	"PPClient/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Only used while wiring components at startup.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// DefaultString returns the dereferenced value of a string pointer,
// or the fallback if the pointer is nil.
func DefaultString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// Call runs f and converts a panic into an error.
func Call(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	f()
	return nil
}

// SafeGo starts a goroutine whose panic is logged instead of crashing the process.
func SafeGo(name string, f func()) {
	go func() {
		if err := Call(f); err != nil {
			logger.Error("goroutine panic recovered", zap.String("goroutine", name), zap.Error(err))
		}
	}()
}
