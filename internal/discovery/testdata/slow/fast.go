package fast

// Quick returns at once.
//
//tool:meta name:"quick"
func Quick() string { return "quick" }
