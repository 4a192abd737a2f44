package main

import (
	"github.com/muid-io/tracehub/pkg/cli"
)

func main() {
	cli.ServerExecute()
}
