package syntax

func Oops( string {
