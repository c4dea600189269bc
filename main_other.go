//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// The hotkey library needs the process main thread on macOS and
	// Windows; run() moves to a goroutine underneath it.
	mainthread.Init(run)
}
