// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package main

import (
	"os"

	"github.com/nixomose/nixomosegotools/tools"
	"gopkg.in/yaml.v3"
)

type Zfifocmd_config struct {
	Block_size       uint32 `yaml:"block_size"`
	Number_of_blocks uint64 `yaml:"number_of_blocks"`
	Fifo_depth       int    `yaml:"fifo_depth"`
	Backing_file     string `yaml:"backing_file"` // empty means ramdisk
}

func default_config() *Zfifocmd_config {
	var c Zfifocmd_config
	c.Block_size = 4096
	c.Number_of_blocks = 4096 // 16 meg of device at 4k blocks
	c.Fifo_depth = 64
	c.Backing_file = ""
	return &c
}

/* Load_config starts from the defaults and lays the yaml file over them if
   one was given. command line flags get laid over the result of this. */
func Load_config(log *tools.Nixomosetools_logger, path string) (tools.Ret, *Zfifocmd_config) {
	var config *Zfifocmd_config = default_config()
	if path == "" {
		return nil, config
	}
	var data, err = os.ReadFile(path)
	if err != nil {
		return tools.Error(log, "unable to read config file ", path, ", err: ", err), nil
	}
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return tools.Error(log, "unable to parse config file ", path, ", err: ", err), nil
	}
	return nil, config
}
