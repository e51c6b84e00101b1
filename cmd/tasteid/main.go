// Package main provides the tasteid command line.
package main

import "github.com/thebtf/tasteid/internal/cli"

func main() {
	cli.Execute()
}
