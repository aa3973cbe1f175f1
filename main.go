package main

import "github.com/astarworks/astar-management/cmd"

func main() {
	cmd.Execute()
}
