package main

import "quickbench/cmd"

func main() {
	cmd.Execute()
}
