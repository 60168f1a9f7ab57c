package main

import (
	"github.com/traceroam/tracereplay/cmd"
)

func main() {
	cmd.Execute()
}
