package main

import "github.com/gridrun/gridrun/cmd"

func main() {
	cmd.Execute()
}
