package main

import (
	"fmt"
	"os"

	"github.com/disiqueira/gotree/v3"
	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittosync/pkg/core"
	"github.com/marmos91/dittosync/pkg/metadata"
)

type cmdTree struct {
	Status bool `long:"status" description:"Show how many devices hold each object in sync"`
}

func (cmd *cmdTree) Execute([]string) error {
	return withCore(func(c *core.Core) error {
		return c.Read(func() error {
			t, err := cmd.render(c)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, t.Print())
			return nil
		})
	})
}

// render builds the namespace of the root store. Anchors are followed into
// the stores they mount; the trash of every store is left out.
func (cmd *cmdTree) render(c *core.Core) (gotree.Tree, error) {
	root := c.Hierarchy.Root()
	sid, _ := c.Hierarchy.SIDOf(root)
	t := gotree.New("/ " + sid.String())
	return t, cmd.addChildren(c, t, metadata.RootSOID(root))
}

func (cmd *cmdTree) addChildren(c *core.Core, t gotree.Tree, dir metadata.SOID) error {
	children, err := c.Dirs.ListChildren(dir)
	if err != nil {
		return err
	}
	for _, oid := range children {
		if oid.IsTrash() {
			continue
		}
		soid := metadata.NewSOID(dir.SIdx, oid)
		oa, err := c.Dirs.GetOA(soid)
		if err != nil {
			return err
		}

		label, err := cmd.label(c, oa)
		if err != nil {
			return err
		}
		node := t.Add(label)

		switch {
		case oa.IsDir():
			if err := cmd.addChildren(c, node, soid); err != nil {
				return err
			}
		case oa.IsAnchor():
			// An expelled anchor mounts nothing.
			if sidx, ok := c.Hierarchy.SIndexOf(metadata.AnchorSID(oid)); ok {
				if err := cmd.addChildren(c, node, metadata.RootSOID(sidx)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (cmd *cmdTree) label(c *core.Core, oa *metadata.OA) (string, error) {
	label := oa.Name()
	switch {
	case oa.IsDir():
		label += "/"
	case oa.IsAnchor():
		label += "@"
	}

	if oa.IsExpelled() {
		return label + " (expelled)", nil
	}
	if ca := oa.CAMaster(); ca != nil {
		label += " " + humanize.Bytes(uint64(ca.Length))
	}
	if cmd.Status && !oa.IsAnchor() {
		in, err := c.Aggregator.DevicesInSync(oa.SOID())
		if err != nil {
			return "", err
		}
		m, err := c.Aggregator.Devices(oa.SOID().SIdx)
		if err != nil {
			return "", err
		}
		label += fmt.Sprintf(" [%d/%d in sync]", len(in), m.Len())
	}
	return label, nil
}
