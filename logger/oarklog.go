package logger

import (
	"fmt"

	oarklog "github.com/oarkflow/log"
)

// OarkLogger adapts the phuslu-style github.com/oarkflow/log package to the
// Logger interface.
type OarkLogger struct{}

func NewOarkLogger() *OarkLogger { return &OarkLogger{} }

func (*OarkLogger) Debug(msg string, keyvals ...any) { emit(oarklog.Debug(), msg, keyvals) }
func (*OarkLogger) Info(msg string, keyvals ...any)  { emit(oarklog.Info(), msg, keyvals) }
func (*OarkLogger) Error(msg string, keyvals ...any) { emit(oarklog.Error(), msg, keyvals) }

func emit(b *oarklog.Entry, msg string, keyvals []any) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		switch v := keyvals[i+1].(type) {
		case string:
			b = b.Str(key, v)
		case bool:
			b = b.Bool(key, v)
		case int:
			b = b.Int(key, v)
		case int64:
			b = b.Int64(key, v)
		default:
			b = b.Any(key, v)
		}
	}
	b.Msg(msg)
}
