package ping

// Ping answers with pong.
//
//tool:meta name:"ping" readonly:"true"
func Ping() string { return "pong" }
