package main

import (
	"os"

	"github.com/Evervolv/android-packages-apps-EVUpdater/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
