package core

// Logger is any service that can log & report application events.
// args may contain an error, a map[string]interface{} of extra fields, and the person tied to the event.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
