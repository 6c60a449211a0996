package greet

import "fmt"

// SayHello greets someone by name.
//
//tool:meta name:"say_hello" tags:"greeting,demo" exclude:"lang" readonly:"true"
func SayHello(name string, lang *string) map[string]any {
	greeting := "hello"
	if lang != nil && *lang == "fr" {
		greeting = "bonjour"
	}
	return map[string]any{"message": fmt.Sprintf("%s %s", greeting, name)}
}

// Wave is exported but not a tool.
func Wave() string { return "o/" }

func helper() int { return 1 }
