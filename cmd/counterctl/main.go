// Copyright 2016-2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Command counterctl reads, changes, and load-tests counters, either
// directly against a store or through a running counterd.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/diffeo/go-counter/backend"
	"github.com/diffeo/go-counter/counter"
	"github.com/diffeo/go-counter/restclient"
)

// tool holds the state shared by every subcommand.
type tool struct {
	Counters    counter.Counters
	Store       counter.Store
	Out         io.Writer
	ID          string
	User        string
	Concurrency int
}

// Run calls runner from Concurrency goroutines and waits for all of
// them to finish.
func (t *tool) Run(runner func()) {
	wg := sync.WaitGroup{}
	wg.Add(t.Concurrency)
	for i := 0; i < t.Concurrency; i++ {
		go func() {
			defer wg.Done()
			runner()
		}()
	}
	wg.Wait()
}

func (t *tool) print(rec counter.Record) {
	fmt.Fprintf(t.Out, "%s\t%d\tversion=%d", rec.ID, rec.Value, rec.Version)
	if rec.LastUser != "" {
		fmt.Fprintf(t.Out, "\tuser=%s", rec.LastUser)
	}
	fmt.Fprintln(t.Out)
}

func (t *tool) apply(op counter.Operation) error {
	rec, err := t.Counters.Apply(context.Background(), t.ID, op, t.User)
	if err != nil {
		return err
	}
	t.print(rec)
	return nil
}

func (t *tool) action(action counter.Action) func(*cli.Context) error {
	return func(c *cli.Context) error {
		return t.apply(counter.Operation{
			Action:  action,
			IfMatch: c.Int64("if-match"),
		})
	}
}

var ifMatchFlag = cli.Int64Flag{
	Name:  "if-match",
	Usage: "only change the counter if it is at this version",
}

func (t *tool) commands() []cli.Command {
	return []cli.Command{
		{
			Name:  "get",
			Usage: "print a counter, creating it if needed",
			Action: func(c *cli.Context) error {
				rec, err := t.Counters.Counter(context.Background(), t.ID)
				if err != nil {
					return err
				}
				t.print(rec)
				return nil
			},
		},
		{
			Name:   "incr",
			Usage:  "add one to a counter",
			Flags:  []cli.Flag{ifMatchFlag},
			Action: t.action(counter.Increment),
		},
		{
			Name:   "decr",
			Usage:  "subtract one from a counter",
			Flags:  []cli.Flag{ifMatchFlag},
			Action: t.action(counter.Decrement),
		},
		{
			Name:   "reset",
			Usage:  "set a counter to zero",
			Flags:  []cli.Flag{ifMatchFlag},
			Action: t.action(counter.Reset),
		},
		{
			Name:      "set",
			Usage:     "set a counter to a value",
			ArgsUsage: "value",
			Flags:     []cli.Flag{ifMatchFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return errors.New("set needs exactly one value")
				}
				value, err := strconv.ParseInt(c.Args().First(), 10, 64)
				if err != nil {
					return err
				}
				return t.apply(counter.Operation{
					Action:  counter.Set,
					Value:   value,
					IfMatch: c.Int64("if-match"),
				})
			},
		},
		{
			Name:  "delete",
			Usage: "delete a counter",
			Action: func(c *cli.Context) error {
				return t.Counters.Delete(context.Background(), t.ID)
			},
		},
		{
			Name:  "bench",
			Usage: "increment a counter concurrently and check for lost updates",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "count",
					Value: 1000,
					Usage: "total number of increments",
				},
			},
			Action: t.bench,
		},
	}
}

func (t *tool) bench(c *cli.Context) error {
	ctx := context.Background()
	count := c.Int("count")
	start, err := t.Counters.Counter(ctx, t.ID)
	if err != nil {
		return err
	}

	numbers := make(chan int)
	go func() {
		for i := 1; i <= count; i++ {
			numbers <- i
		}
		close(numbers)
	}()
	var failed int64
	began := time.Now()
	t.Run(func() {
		for range numbers {
			_, err := t.Counters.Apply(ctx, t.ID, counter.Operation{Action: counter.Increment}, t.User)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				logrus.WithFields(logrus.Fields{
					"err": err,
					"id":  t.ID,
				}).Debug("Increment failed")
			}
		}
	})
	elapsed := time.Since(began)

	end, err := t.Counters.Counter(ctx, t.ID)
	if err != nil {
		return err
	}
	succeeded := int64(count) - failed
	lost := start.Value + succeeded - end.Value
	fmt.Fprintf(t.Out, "%d increments in %v (%d failed), %d -> %d, %d lost\n",
		count, elapsed, failed, start.Value, end.Value, lost)
	if lost != 0 {
		return fmt.Errorf("lost %d updates", lost)
	}
	return nil
}

// newApp builds the command-line application, writing results to out.
func newApp(out io.Writer) *cli.App {
	backend := backend.Backend{Implementation: "memory"}
	t := &tool{Out: out}

	app := cli.NewApp()
	app.Name = "counterctl"
	app.Usage = "read, change, and load-test persistent counters"
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.GenericFlag{
			Name:  "backend",
			Value: &backend,
			Usage: "impl:[address] of counter backend",
		},
		cli.StringFlag{
			Name:   "url",
			Usage:  "use the counterd REST service at this URL instead of a backend",
			EnvVar: "COUNTER_URL",
		},
		cli.StringFlag{
			Name:   "token",
			Usage:  "bearer token for the REST service",
			EnvVar: "COUNTER_TOKEN",
		},
		cli.StringFlag{
			Name:   "key",
			Usage:  "function key for the REST service",
			EnvVar: "COUNTER_KEY",
		},
		cli.StringFlag{
			Name:  "id",
			Value: counter.DefaultID,
			Usage: "name of the counter",
		},
		cli.StringFlag{
			Name:  "user",
			Value: os.Getenv("USER"),
			Usage: "name recorded as the last user, for direct backends",
		},
		cli.IntFlag{
			Name:  "concurrency",
			Value: runtime.NumCPU(),
			Usage: "run this many requests in parallel",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "log failed requests",
		},
	}
	app.Commands = t.commands()
	app.Before = func(c *cli.Context) (err error) {
		if c.Bool("verbose") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		t.ID = c.String("id")
		t.User = c.String("user")
		t.Concurrency = c.Int("concurrency")
		if t.Concurrency < 1 {
			t.Concurrency = 1
		}
		if url := c.String("url"); url != "" {
			var opts []restclient.Option
			if token := c.String("token"); token != "" {
				opts = append(opts, restclient.WithBearerToken(token))
			}
			if key := c.String("key"); key != "" {
				opts = append(opts, restclient.WithFunctionKey(key))
			}
			t.Counters, err = restclient.New(url, opts...)
			return err
		}
		t.Store, err = backend.Store()
		if err != nil {
			return err
		}
		t.Counters = counter.NewService(t.Store)
		return nil
	}
	app.After = func(c *cli.Context) error {
		if t.Store != nil {
			return t.Store.Close()
		}
		return nil
	}
	return app
}

func main() {
	newApp(os.Stdout).RunAndExitOnError()
}
