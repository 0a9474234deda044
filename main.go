package main

import "github.com/offszn/marketplace/cmd"

func main() {
	cmd.Execute()
}
