package main

import "github.com/residency-data/goaccredit/cmd/goaccredit/cmd"

func main() {
	cmd.Execute()
}
