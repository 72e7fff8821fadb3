package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type SignalHandler struct {
	sigChan chan os.Signal
	done    chan struct{}
	once    sync.Once
}

func NewSignalHandler() *SignalHandler {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	return &SignalHandler{
		sigChan: sigChan,
		done:    make(chan struct{}),
	}
}

func (s *SignalHandler) Start() {
	go func() {
		<-s.sigChan
		fmt.Println("\nReceived shutdown signal...")
		s.once.Do(func() { close(s.done) })
	}()
}

// Done is closed after the first interrupt. A read blocked on stdin only
// notices on its next line.
func (s *SignalHandler) Done() <-chan struct{} {
	return s.done
}

func (s *SignalHandler) Stop() {
	signal.Stop(s.sigChan)
}
