package main

import (
	"os"

	"github.com/Zakki0925224/kombu/build-tools/pkg/buildsys/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
