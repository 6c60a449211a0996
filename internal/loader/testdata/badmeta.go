package badmeta

// Bad has a malformed directive.
//
//tool:meta name:"bad" colour:"blue"
func Bad() string { return "bad" }

// Good is fine.
//
//tool:meta name:"good"
func Good() string { return "good" }

func Register(n int) {}
