package main

import "github.com/channeltrace/cct/cmd/cct/cmd"

func main() {
	cmd.Execute()
}
