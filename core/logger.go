package core

// Logger is implemented by the logging services.
// args may hold errors, extra data maps or the authenticated Caller.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Caller identifies the authenticated user behind a request, as read from its token.
type Caller struct {
	ID       string
	Username string
	Email    string
}
