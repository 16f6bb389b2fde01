package main

import (
	"fmt"
	"io"
	"os"

	"github.com/marmos91/dittosync/pkg/core"
	"github.com/marmos91/dittosync/pkg/metadata"
)

type cmdChanges struct {
	Store string `long:"store" short:"s" description:"SID of the store (default: the root store)"`
	From  uint64 `long:"from" default:"0" description:"First sequence number to print"`
	Limit int    `long:"limit" default:"100" description:"Maximum number of changes to print"`
}

func (cmd *cmdChanges) Execute([]string) error {
	return withCore(func(c *core.Core) error {
		return c.Read(func() error { return cmd.print(os.Stdout, c) })
	})
}

func (cmd *cmdChanges) print(w io.Writer, c *core.Core) error {
	sidx := c.Hierarchy.Root()
	if cmd.Store != "" {
		sid, err := metadata.ParseSID(cmd.Store)
		if err != nil {
			return err
		}
		var ok bool
		if sidx, ok = c.Hierarchy.SIndexOf(sid); !ok {
			return fmt.Errorf("store %s is not present", sid)
		}
	}

	s, ok := c.Hierarchy.Get(sidx)
	if !ok {
		return fmt.Errorf("store %s is not present", sidx)
	}
	log, ok := s.ChangeLog()
	if !ok {
		return fmt.Errorf("store %s is of kind %s and keeps no change log", s.SID(), s.Kind())
	}

	rows, err := log.Changes(cmd.From, cmd.Limit)
	if err != nil {
		return err
	}
	for _, r := range rows {
		sokid := metadata.SOKID{SOID: metadata.NewSOID(sidx, r.OID), KIdx: r.KIdx}
		if _, err := fmt.Fprintf(w, "%8d %-10s %s\n", r.Seq, r.Kind, sokid); err != nil {
			return err
		}
	}
	return nil
}
