package main

import (
	"github.com/robotalks/ghostkb/pkg/cli/sh"

	_ "github.com/robotalks/ghostkb/pkg/cli/cmds/keyboard"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
