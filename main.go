/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/aurora/engine"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/testbed"
)

func main() {
	tb := testbed.NewTestGame()

	engine, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := engine.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		// quit through the event bus so the frame loop drains the frame
		// in flight before systems are torn down
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	}()

	// run engine
	if err := engine.Run(); err != nil {
		panic(err)
	}
}
