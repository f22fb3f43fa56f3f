package logger

// NullLogger discards everything. It is the default when no logger is
// installed and keeps the hot path free of logging cost in tests.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (*NullLogger) Debug(string, ...any) {}
func (*NullLogger) Info(string, ...any)  {}
func (*NullLogger) Error(string, ...any) {}
