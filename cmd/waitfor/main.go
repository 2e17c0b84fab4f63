// waitfor will poll an url until it answers with 200 OK, and exit with
// status 0. If the server is not available within the max number of
// attempts it exits with 1, and with 130 if interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/postmannen/staticserve"
)

func main() {
	targetURL := flag.String("targetURL", staticserve.CheckEnv("TARGET_URL", "http://localhost:8080/"), "the url to wait for")
	checkInterval := flag.Int("checkInterval", staticserve.CheckEnv("CHECK_INTERVAL", 5000), "milliseconds to wait between each attempt")
	maxAttempts := flag.Int("maxAttempts", staticserve.CheckEnv("MAX_ATTEMPTS", 60), "max number of attempts")
	timeout := flag.Int("timeout", staticserve.CheckEnv("TIMEOUT", 10000), "timeout in milliseconds for each attempt")
	flag.Parse()

	wc := staticserve.WaitConfig{
		TargetURL:     *targetURL,
		CheckInterval: time.Millisecond * time.Duration(*checkInterval),
		MaxAttempts:   *maxAttempts,
		Timeout:       time.Millisecond * time.Duration(*timeout),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := log.New(os.Stdout, "waitfor ", log.LstdFlags)
	logger.Printf("target url: %v, check interval: %v, max attempts: %v, timeout: %v", wc.TargetURL, wc.CheckInterval, wc.MaxAttempts, wc.Timeout)

	_, err := staticserve.WaitForServer(ctx, wc, logger)
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, context.Canceled):
		logger.Printf("interrupted by user")
		os.Exit(130)
	default:
		logger.Printf("%v", err)
		os.Exit(1)
	}
}
