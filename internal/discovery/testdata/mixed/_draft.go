package draft

func Broken( {
