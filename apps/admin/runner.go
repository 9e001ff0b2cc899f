package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) poll(now time.Time) error {
	results, err := cli.runner.Poll(context.Background(), now)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(cli.out, "nothing due")
		return nil
	}
	for _, res := range results {
		fmt.Fprintln(cli.out, res)
	}
	return nil
}

func (cli *commandLine) retry(now time.Time) error {
	stats, err := cli.runner.RetrySweep(context.Background(), now)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, stats)
	return nil
}
