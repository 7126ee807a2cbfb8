package main

import (
	"github.com/priyxstudio/fwauth/cmd"
)

func main() {
	cmd.Execute()
}
