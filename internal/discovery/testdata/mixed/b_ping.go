package pong

// Pong also wants to be called ping.
//
//tool:meta name:"ping"
func Pong() string { return "ping" }

// Echo returns its input.
//
//tool:meta name:"echo" idempotent:"true"
func Echo(text string) string { return text }
