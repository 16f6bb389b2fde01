package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittosync/pkg/config"
	"github.com/marmos91/dittosync/pkg/core"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/ds"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/marmos91/dittosync/pkg/syncstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCore(t *testing.T, kind string) *core.Core {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.Database.Type = "memory"
	cfg.Physical.Type = "memory"
	cfg.Stores.UserID = "alice"
	cfg.Stores.Kind = kind
	cfg.Cleanup.Enabled = false

	c, err := core.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

// populate mounts a child store at /shared holding a 2 kB file /shared/f and
// creates an empty directory /docs in the root store. It returns the file.
func populate(t *testing.T, c *core.Core) metadata.SOID {
	t.Helper()
	root := c.Hierarchy.Root()

	var file metadata.SOID
	require.NoError(t, c.Run(func(tx *trans.Trans) error {
		if err := c.Dirs.CreateOA(tx, root, metadata.NewOID(), metadata.OIDRoot, "docs", metadata.TypeDir, 0); err != nil {
			return err
		}
		child, err := c.Creator.CreateChildStore(tx, metadata.RootSOID(root), "shared", metadata.NewSID())
		if err != nil {
			return err
		}
		file = metadata.NewSOID(child.SIndex(), metadata.NewOID())
		if err := c.Dirs.CreateOA(tx, file.SIdx, file.OID, metadata.OIDRoot, "f", metadata.TypeFile, 0); err != nil {
			return err
		}
		if err := c.Dirs.CreateCA(tx, file, metadata.KIndexMaster); err != nil {
			return err
		}
		return c.Dirs.SetCA(tx, metadata.SOKID{SOID: file, KIdx: metadata.KIndexMaster}, 2000, 1, nil)
	}))
	return file
}

func TestTreeFollowsAnchors(t *testing.T) {
	c := newCore(t, "plain")
	file := populate(t, c)

	require.NoError(t, c.Run(func(tx *trans.Trans) error {
		pos, err := c.Aggregator.RegisterDevice(tx, file.SIdx, metadata.NewDID())
		if err != nil {
			return err
		}
		return c.Aggregator.SetRawStatus(tx, file, syncstatus.NewBitVector(pos))
	}))

	cmd := &cmdTree{Status: true}
	tree, err := cmd.render(c)
	require.NoError(t, err)
	out := tree.Print()

	assert.Contains(t, out, "docs/ [0/0 in sync]")
	assert.Contains(t, out, "shared@")
	assert.Contains(t, out, "f 2.0 kB [1/1 in sync]")
	assert.NotContains(t, out, ds.TrashName)
}

func TestTreeMarksExpelledObjects(t *testing.T) {
	c := newCore(t, "plain")
	file := populate(t, c)

	sid, ok := c.Hierarchy.SIDOf(file.SIdx)
	require.True(t, ok)
	anchor := metadata.NewSOID(c.Hierarchy.Root(), metadata.AnchorOID(sid))
	require.NoError(t, c.Run(func(tx *trans.Trans) error {
		return c.Dirs.SetExpelled(tx, anchor, true)
	}))

	tree, err := (&cmdTree{}).render(c)
	require.NoError(t, err)
	out := tree.Print()

	assert.Contains(t, out, "shared@ (expelled)")
	assert.NotContains(t, out, "2.0 kB")
}

func TestPrintStores(t *testing.T) {
	c := newCore(t, "plain")
	populate(t, c)

	var buf bytes.Buffer
	require.NoError(t, printStores(&buf, c))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), metadata.RootSIDForUser("alice").String())
	assert.Contains(t, string(lines[0]), "(root)")
	assert.Contains(t, string(lines[1]), "parents=["+c.Hierarchy.Root().String()+"]")
}

func TestChangesRequireChangeLogStore(t *testing.T) {
	c := newCore(t, "plain")

	var buf bytes.Buffer
	err := (&cmdChanges{Limit: 10}).print(&buf, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keeps no change log")
}

func TestChangesListsContentChanges(t *testing.T) {
	c := newCore(t, "changelog")
	file := populate(t, c)
	sid, ok := c.Hierarchy.SIDOf(file.SIdx)
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, (&cmdChanges{Store: sid.String(), Limit: 10}).print(&buf, c))
	assert.Contains(t, buf.String(), file.OID.String())
}

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dittosync", "config.yaml")

	require.NoError(t, (&cmdInit{Output: path}).Execute(nil))
	require.Error(t, (&cmdInit{Output: path}).Execute(nil))
	require.NoError(t, (&cmdInit{Output: path, Force: true}).Execute(nil))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plain", cfg.Stores.Kind)
}
