package main

import (
	"fmt"
	"os"
)

func main() {
	root := NewRootCmd(nil)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
