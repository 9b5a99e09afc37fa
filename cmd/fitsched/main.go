package main

import "github.com/example/fitsched/cmd"

func main() {
	cmd.Execute()
}
