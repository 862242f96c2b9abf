/*
Copyright © 2022 Daniils Petrovs <thedanpetrov@gmail.com>

*/
package main

import (
	"runtime"

	"github.com/DaniruKun/dronetracker/cmd"
)

// OpenCV windows must be driven from the thread that created them
func init() {
	runtime.LockOSThread()
}

func main() {
	cmd.Execute()
}
