package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/marmos91/dittosync/pkg/core"
	"github.com/marmos91/dittosync/pkg/metadata"
)

type cmdStores struct{}

func (cmd *cmdStores) Execute([]string) error {
	return withCore(func(c *core.Core) error {
		return c.Read(func() error { return printStores(os.Stdout, c) })
	})
}

// printStores writes one line per present store: index, SID, kind and parents.
func printStores(w io.Writer, c *core.Core) error {
	all := c.Hierarchy.All()
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	for _, sidx := range all {
		s, ok := c.Hierarchy.Get(sidx)
		if !ok {
			continue
		}
		label := ""
		if sidx == c.Hierarchy.Root() {
			label = " (root)"
		}
		if _, err := fmt.Fprintf(w, "%-4s %s %-9s parents=%v%s\n",
			sidx, s.SID(), s.Kind(), parentList(c, sidx), label); err != nil {
			return err
		}
	}
	return nil
}

func parentList(c *core.Core, sidx metadata.SIndex) []string {
	var out []string
	for _, p := range c.Hierarchy.Parents(sidx) {
		out = append(out, p.String())
	}
	return out
}
