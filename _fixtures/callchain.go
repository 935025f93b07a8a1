package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"syscall"
)

func init() {
	// Keep main.main on the thread the debugger traces.
	runtime.LockOSThread()
}

func leaf(n int) int {
	r := n * 2 // leaf body
	return r + 1
}

func middle(n int) int {
	v := leaf(n) // middle call
	return v + 1
}

func main() {
	code := 0
	if len(os.Args) > 1 {
		if os.Args[1] == "kill" {
			syscall.Kill(os.Getpid(), syscall.SIGKILL)
		}
		code, _ = strconv.Atoi(os.Args[1])
	}
	total := 0
	for i := 0; i < 3; i++ {
		total += middle(i) // main call
	}
	fmt.Println("total", total)
	os.Exit(code)
}
