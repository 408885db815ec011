// Command timestamp converts second offsets to H:MM:SS.mmm timestamps.
//
// Usage:
//
//	timestamp SECONDS [SECONDS...]
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/visiona/framestream/timecode"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s SECONDS [SECONDS...]\n", os.Args[0])
		os.Exit(2)
	}

	for _, arg := range os.Args[1:] {
		seconds, err := strconv.ParseFloat(arg, 64)
		if err != nil || seconds < 0 {
			fmt.Fprintf(os.Stderr, "%s: not a non-negative number of seconds: %q\n", os.Args[0], arg)
			os.Exit(1)
		}
		fmt.Println(timecode.FromSeconds(seconds))
	}
}
