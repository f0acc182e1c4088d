package utils

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/sirupsen/logrus"
)

// WaitForShutdown blocks until SIGINT/SIGTERM is received or ctx is done.
func WaitForShutdown(ctx context.Context) os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		return sig
	case <-ctx.Done():
		return nil
	}
}

func HandleSubroutinePanic(identifier string) {
	if err := recover(); err != nil {
		logrus.WithError(fmt.Errorf("%v", err)).Errorf("uncaught panic in %v subroutine: %v, stack: %v", identifier, err, string(debug.Stack()))
	}
}
