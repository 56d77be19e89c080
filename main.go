package main

import "github.com/sablehq/sable/cmd"

func main() {
	cmd.Execute()
}
