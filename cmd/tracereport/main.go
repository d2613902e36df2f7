// Command tracereport reads calltracer trace lines out of test logs and prints them as tables.
//
//	go test ./... 2>&1 | tracereport --failures-only
//	tracereport --tag test_function --tag test_subfunction unit.log integration.log
//	tracereport --json ci.log
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
