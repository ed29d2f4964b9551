package main

import "github.com/example/seat-scheduler/cmd"

func main() {
	cmd.Execute()
}
