package main

import "github.com/cloudctl/cloudctl/cmd"

func main() {
	cmd.Execute()
}
