package main

import (
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		ErrorPrintf("%v\n", err)
		os.Exit(1)
	}
}
