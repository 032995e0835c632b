// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package colors

import (
	"fmt"
	"io"
	"regexp"
)

var Red = "\033[31;1m"
var Yellow = "\033[33;1m"
var Mint = "\033[38;5;48;1m"
var Grey = "\033[90m"

var Clear = "\033[0;0m"

var uncolor = regexp.MustCompile("\x1b\\[([0-9]+;)*[0-9]+m")

// Fprintln writes the args wrapped in the given color, or uncolored when color is empty.
func Fprintln(w io.Writer, color string, args ...interface{}) {
	if color == "" {
		fmt.Fprintln(w, args...)
		return
	}
	fmt.Fprint(w, color)
	fmt.Fprint(w, args...)
	fmt.Fprintln(w, Clear)
}

func Uncolor(text string) string {
	return uncolor.ReplaceAllString(text, "")
}
