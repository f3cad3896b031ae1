package main

import "github.com/oshokin/binary-cache/cmd/bincache/cmd"

func main() {
	cmd.Execute()
}
