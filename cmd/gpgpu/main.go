// Command gpgpu inspects devices and runs sample kernels.
package main

import (
	"os"

	"github.com/gogpu/gpgpu/cmd/gpgpu/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
