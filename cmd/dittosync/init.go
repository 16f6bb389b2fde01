package main

import (
	"fmt"

	"github.com/marmos91/dittosync/pkg/config"
)

type cmdInit struct {
	Output string `long:"output" short:"o" description:"Write the configuration here instead of the default location"`
	Force  bool   `long:"force" short:"f" description:"Overwrite an existing configuration file"`
}

func (cmd *cmdInit) Execute([]string) error {
	path := cmd.Output
	if path == "" {
		var err error
		if path, err = config.InitConfig(cmd.Force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(path, cmd.Force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
