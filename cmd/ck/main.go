package main

import (
	"os"

	"github.com/conceptkernel/ck-core/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
