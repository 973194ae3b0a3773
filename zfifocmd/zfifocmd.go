// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package main

/* the zfifocmd exerciser: stand up an in-process block device (ramdisk or a
   direct io backing file), point a client at it, and run the whole io surface
   once so you can see every piece work: attach and detach, registered buffer
   round trips, and the chunked plain memory path with pattern verification. */

import (
	"bytes"
	"fmt"
	"os"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifoclientlib"
	"github.com/nixomose/zfifogoclient/zfifoclientlib/zfifointerfaces"
	"github.com/nixomose/zfifogoclient/zfifolib"
	"github.com/nixomose/zfifogoclient/zfifoserverlib"
	"github.com/nixomose/zfifogoclient/zfifoserverlib/storage"
	"github.com/spf13/cobra"
)

var flag_config string
var flag_backing_file string
var flag_block_size uint32
var flag_number_of_blocks uint64
var flag_fifo_depth int

func main() {
	var root_cmd = &cobra.Command{
		Use:   "zfifocmd",
		Short: "exercise the zfifo block client against an in-process device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run_exercise()
		},
		SilenceUsage: true,
	}
	root_cmd.Flags().StringVarP(&flag_config, "config", "c", "", "yaml config file")
	root_cmd.Flags().StringVarP(&flag_backing_file, "backing-file", "b", "", "backing file for direct io storage, default is a ramdisk")
	root_cmd.Flags().Uint32VarP(&flag_block_size, "block-size", "k", 0, "device block size in bytes")
	root_cmd.Flags().Uint64VarP(&flag_number_of_blocks, "blocks", "n", 0, "number of blocks on the device")
	root_cmd.Flags().IntVarP(&flag_fifo_depth, "fifo-depth", "f", 0, "depth of the request/response fifo")

	var err = root_cmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func run_exercise() error {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)

	var ret, config = Load_config(log, flag_config)
	if ret != nil {
		return fmt.Errorf("%s", ret.Get_errmsg())
	}
	// flags override the config file
	if flag_block_size != 0 {
		config.Block_size = flag_block_size
	}
	if flag_number_of_blocks != 0 {
		config.Number_of_blocks = flag_number_of_blocks
	}
	if flag_fifo_depth != 0 {
		config.Fifo_depth = flag_fifo_depth
	}
	if flag_backing_file != "" {
		config.Backing_file = flag_backing_file
	}

	log.Info("block size: ", config.Block_size, ", blocks: ", config.Number_of_blocks,
		", fifo depth: ", config.Fifo_depth)

	/* make the storage mechanism for the device side */
	var store zfifointerfaces.Storage_mechanism
	if config.Backing_file == "" {
		log.Info("backing storage: ramdisk")
		store = storage.New_ramdiskstorage(log, config.Block_size)
	} else {
		log.Info("backing storage: direct io file ", config.Backing_file)
		var filestore *storage.Filestorage
		ret, filestore = storage.New_filestorage(log, config.Block_size, config.Backing_file,
			uint64(config.Block_size)*config.Number_of_blocks)
		if ret != nil {
			return fmt.Errorf("%s", ret.Get_errmsg())
		}
		defer filestore.Close()
		store = filestore
	}

	/* stand up the device and the client */
	var server *zfifoserverlib.Block_server
	ret, server = zfifoserverlib.New_block_server(log, store, config.Number_of_blocks, config.Fifo_depth)
	if ret != nil {
		return fmt.Errorf("%s", ret.Get_errmsg())
	}
	go server.Run()

	var device *zfifoclientlib.Remote_block_device
	ret, device = zfifoclientlib.New_remote_block_device(log, server)
	if ret != nil {
		return fmt.Errorf("%s", ret.Get_errmsg())
	}
	defer device.Close()

	ret = exercise_registered_io(log, device)
	if ret != nil {
		return fmt.Errorf("%s", ret.Get_errmsg())
	}
	ret = exercise_plain_memory_io(log, device)
	if ret != nil {
		return fmt.Errorf("%s", ret.Get_errmsg())
	}

	log.Info("all exercises passed.")
	return nil
}

/* round trip a pattern through an attached vmo, then detach it. */
func exercise_registered_io(log *tools.Nixomosetools_logger, device *zfifoclientlib.Remote_block_device) tools.Ret {
	var block_size = uint64(device.Get_block_size())
	var io_size uint64 = block_size * 8

	var vmo = zfifolib.New_memory_buffer(log, io_size)
	var ret, vmoid = device.Attach_vmo(vmo)
	if ret != nil {
		return ret
	}
	log.Info("attached a ", io_size, " byte vmo, vmoid: ", vmoid.Get_id())

	var pattern []byte = make([]byte, io_size)
	for lp := range pattern {
		pattern[lp] = byte(lp)
	}
	ret = vmo.Write_at(pattern, 0)
	if ret != nil {
		return ret
	}

	ret = device.Write_at(zfifoclientlib.New_vmo_buffer_slice(vmoid, 0, io_size), block_size)
	if ret != nil {
		return ret
	}
	log.Info("wrote ", io_size, " bytes through the registered buffer")

	// scribble over the vmo so the read back has to actually read
	ret = vmo.Write_at(make([]byte, io_size), 0)
	if ret != nil {
		return ret
	}
	ret = device.Read_at(zfifoclientlib.New_vmo_mutable_buffer_slice(vmoid, 0, io_size), block_size)
	if ret != nil {
		return ret
	}
	var readback []byte = make([]byte, io_size)
	ret = vmo.Read_at(readback, 0)
	if ret != nil {
		return ret
	}
	if bytes.Equal(pattern, readback) == false {
		return tools.Error(log, "registered io readback does not match what was written")
	}
	log.Info("read back ", io_size, " bytes through the registered buffer, data matches")

	ret = device.Detach_vmo(vmoid)
	if ret != nil {
		return ret
	}
	log.Info("detached the vmo")
	return nil
}

/* round trip a pattern bigger than the scratch buffer through plain process
   memory, so the chunking path gets a workout. */
func exercise_plain_memory_io(log *tools.Nixomosetools_logger, device *zfifoclientlib.Remote_block_device) tools.Ret {
	var block_size = uint64(device.Get_block_size())
	var io_size uint64 = zfifoclientlib.TEMP_VMO_SIZE_BYTES*3 + block_size

	var pattern []byte = make([]byte, io_size)
	for lp := range pattern {
		pattern[lp] = 0xa3
	}

	var ret = device.Write_at(zfifoclientlib.New_memory_buffer_slice(pattern), block_size)
	if ret != nil {
		return ret
	}
	log.Info("wrote ", io_size, " bytes of plain memory through the scratch buffer")

	var readback []byte = make([]byte, io_size)
	ret = device.Read_at(zfifoclientlib.New_memory_mutable_buffer_slice(readback), block_size)
	if ret != nil {
		return ret
	}
	if bytes.Equal(pattern, readback) == false {
		return tools.Error(log, "plain memory readback does not match what was written")
	}
	log.Info("read back ", io_size, " bytes of plain memory, data matches")
	return nil
}
