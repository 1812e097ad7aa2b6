package main

import (
	"os"

	"github.com/siherrmann/briefings/cli"
)

func main() {
	os.Exit(cli.Execute())
}
