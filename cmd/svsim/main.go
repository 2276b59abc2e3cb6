package main

import (
	"github.com/dlathrop/svsim/pkg/cmd"
)

func main() {
	cmd.Execute()
}
