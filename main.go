// The main package for the harvester executable.
package main

import (
	"github.com/fisatech/datasheet-harvester/cmd"
)

func main() {
	cmd.Execute()
}
