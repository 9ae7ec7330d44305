// The main package for the feedsentry executable.
package main

import (
	"feedsentry/cmd"
)

func main() {
	cmd.Execute()
}
