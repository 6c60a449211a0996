package invalid

// Sum adds any number of values.
//
//tool:meta name:"sum"
func Sum(nums ...int) int {
	total := 0
	for _, n := range nums {
		total += n
	}
	return total
}

// Noop returns nothing.
//
//tool:meta name:"noop"
func Noop(x int) {}

// Greet cannot hide a required parameter.
//
//tool:meta name:"greet" exclude:"name"
func Greet(name string, lang *string) string { return name }

// Drain takes a channel.
//
//tool:meta name:"drain"
func Drain(c chan int) string { return "" }
