package main

import (
	"context"
	"fmt"

	"github.com/marmos91/dittosync/pkg/core"
)

type cmdCleanup struct{}

func (cmd *cmdCleanup) Execute([]string) error {
	return withCore(func(c *core.Core) error {
		// RunNow takes the token for each purge transaction itself.
		stats, err := c.Cleanup.RunNow(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(stats.Summary())
		return nil
	})
}
