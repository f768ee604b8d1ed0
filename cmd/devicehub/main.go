package main

import (
	"os"

	"github.com/Misakaka10086/IoT-Platform/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
