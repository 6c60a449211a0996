package reserved

// ReloadTools clashes with a builtin tool.
func ReloadTools() string { return "nope" }

var Tools = []any{ReloadTools}
