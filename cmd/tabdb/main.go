package main

import (
	"fmt"
	"os"
)

func main() {
	a := &app{}
	err := a.command().Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
