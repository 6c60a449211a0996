package slow

import "time"

func init() {
	time.Sleep(3 * time.Second)
}

// Late is registered too late.
//
//tool:meta name:"late"
func Late() string { return "late" }
