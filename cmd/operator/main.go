package main

import "github.com/josh-kwaku/withdrawal-settlement/cmd/operator/cmd"

func main() {
	cmd.Execute()
}
