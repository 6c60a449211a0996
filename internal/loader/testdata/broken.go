package broken

var answer = explode()

func explode() int {
	panic("boom")
}

// Answer is never reached.
//
//tool:meta name:"answer"
func Answer() int { return answer }
