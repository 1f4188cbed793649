package main

import "github.com/confusion-labs/gateway/cmd"

func main() {
	cmd.Execute()
}
