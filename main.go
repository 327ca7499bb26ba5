package main

import "github.com/bodymorph/bodymorph/cmd"

func main() {
	cmd.Execute()
}
