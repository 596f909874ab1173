package main

import "github.com/gaurav-prasanna/amppipe/cmd"

func main() {
	cmd.Execute()
}
