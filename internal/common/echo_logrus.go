package common

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"
)

const loggingFrameCtx ctxKey = "loggingFrame"

// EchoLogrusLogger adapts a logrus logger to echo.Logger.
type EchoLogrusLogger struct {
	*logrus.Logger
	Ctx context.Context
}

var commonLogger = &EchoLogrusLogger{
	Logger: logrus.StandardLogger(),
	Ctx:    context.Background(),
}

func Logger() *EchoLogrusLogger {
	return commonLogger
}

// NewEchoLogrusLogger returns a logger for one request. Entries carry the
// operation and external ids found in ctx.
func NewEchoLogrusLogger(logger *logrus.Logger, ctx context.Context) *EchoLogrusLogger {
	return &EchoLogrusLogger{
		Logger: logger,
		Ctx:    ctx,
	}
}

// Close drops the request context.
func (l *EchoLogrusLogger) Close() {
	l.Ctx = context.Background()
}

// toEchoLevel maps logrus levels onto echo's. Trace logs as debug, fatal
// and panic only let errors through.
func toEchoLevel(level logrus.Level) log.Lvl {
	switch {
	case level >= logrus.DebugLevel:
		return log.DEBUG
	case level == logrus.InfoLevel:
		return log.INFO
	case level == logrus.WarnLevel:
		return log.WARN
	default:
		return log.ERROR
	}
}

// logWithCaller records the frame that called the echo.Logger method, logrus
// would report this file otherwise. It must be called directly from those
// methods.
func (l *EchoLogrusLogger) logWithCaller() *logrus.Entry {
	rpc := make([]uintptr, 1)
	n := runtime.Callers(3, rpc)
	if n < 1 {
		return l.Logger.WithContext(l.Ctx)
	}
	frame, _ := runtime.CallersFrames(rpc).Next()
	frameOverride := context.WithValue(l.Ctx, loggingFrameCtx, frame)
	return l.Logger.WithContext(frameOverride)
}

// CtxHook copies the caller frame and the request ids stored in the entry
// context into the entry.
type CtxHook struct {
}

func (h *CtxHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.DebugLevel,
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}
}

func (h *CtxHook) Fire(e *logrus.Entry) error {
	if e.Context == nil {
		return nil
	}
	if frame, ok := e.Context.Value(loggingFrameCtx).(runtime.Frame); ok {
		e.Caller = &frame
	}
	if oid, ok := e.Context.Value(operationIDKeyCtx).(string); ok {
		e.Data[OperationIDKey] = oid
	}
	if eid, ok := e.Context.Value(externalIDKeyCtx).(string); ok {
		e.Data[ExternalIDKey] = eid
	}
	return nil
}

func init() {
	commonLogger.Logger.AddHook(&CtxHook{})
}

var _ echo.Logger = &EchoLogrusLogger{}

// The logger is shared with the rest of the process, echo does not get to
// reconfigure it.
func (l *EchoLogrusLogger) Output() io.Writer  { return l.Out }
func (l *EchoLogrusLogger) SetOutput(io.Writer) {}
func (l *EchoLogrusLogger) Level() log.Lvl      { return toEchoLevel(l.Logger.Level) }
func (l *EchoLogrusLogger) SetLevel(log.Lvl)    {}
func (l *EchoLogrusLogger) SetHeader(string)    {}
func (l *EchoLogrusLogger) Prefix() string      { return "" }
func (l *EchoLogrusLogger) SetPrefix(string)    {}

// jsonLine renders the structured messages echo middlewares emit.
func jsonLine(j log.JSON) string {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(j))
	}
	return string(b)
}

func (l *EchoLogrusLogger) Print(i ...interface{}) { l.logWithCaller().Print(i...) }
func (l *EchoLogrusLogger) Printf(format string, args ...interface{}) {
	l.logWithCaller().Printf(format, args...)
}
func (l *EchoLogrusLogger) Printj(j log.JSON) { l.logWithCaller().Println(jsonLine(j)) }

func (l *EchoLogrusLogger) Debug(i ...interface{}) { l.logWithCaller().Debug(i...) }
func (l *EchoLogrusLogger) Debugf(format string, args ...interface{}) {
	l.logWithCaller().Debugf(format, args...)
}
func (l *EchoLogrusLogger) Debugj(j log.JSON) { l.logWithCaller().Debugln(jsonLine(j)) }

func (l *EchoLogrusLogger) Info(i ...interface{}) { l.logWithCaller().Info(i...) }
func (l *EchoLogrusLogger) Infof(format string, args ...interface{}) {
	l.logWithCaller().Infof(format, args...)
}
func (l *EchoLogrusLogger) Infoj(j log.JSON) { l.logWithCaller().Infoln(jsonLine(j)) }

func (l *EchoLogrusLogger) Warn(i ...interface{}) { l.logWithCaller().Warn(i...) }
func (l *EchoLogrusLogger) Warnf(format string, args ...interface{}) {
	l.logWithCaller().Warnf(format, args...)
}
func (l *EchoLogrusLogger) Warnj(j log.JSON) { l.logWithCaller().Warnln(jsonLine(j)) }

func (l *EchoLogrusLogger) Error(i ...interface{}) { l.logWithCaller().Error(i...) }
func (l *EchoLogrusLogger) Errorf(format string, args ...interface{}) {
	l.logWithCaller().Errorf(format, args...)
}
func (l *EchoLogrusLogger) Errorj(j log.JSON) { l.logWithCaller().Errorln(jsonLine(j)) }

func (l *EchoLogrusLogger) Fatal(i ...interface{}) { l.logWithCaller().Fatal(i...) }
func (l *EchoLogrusLogger) Fatalf(format string, args ...interface{}) {
	l.logWithCaller().Fatalf(format, args...)
}
func (l *EchoLogrusLogger) Fatalj(j log.JSON) { l.logWithCaller().Fatalln(jsonLine(j)) }

func (l *EchoLogrusLogger) Panic(i ...interface{}) { l.logWithCaller().Panic(i...) }
func (l *EchoLogrusLogger) Panicf(format string, args ...interface{}) {
	l.logWithCaller().Panicf(format, args...)
}
func (l *EchoLogrusLogger) Panicj(j log.JSON) { l.logWithCaller().Panicln(jsonLine(j)) }
