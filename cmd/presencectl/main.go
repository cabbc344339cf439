package main

import (
	"fmt"
	"os"

	_ "github.com/danmuck/presencectl/internal/transport/async"
	_ "github.com/danmuck/presencectl/internal/transport/blocking"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "presencectl: %v\n", err)
		os.Exit(1)
	}
}
