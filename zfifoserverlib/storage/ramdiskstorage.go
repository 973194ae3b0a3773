// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package storage

import (
	"syscall"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifoclientlib/zfifointerfaces"
)

var _ zfifointerfaces.Storage_mechanism = &Ramdiskstorage{}
var _ zfifointerfaces.Storage_mechanism = (*Ramdiskstorage)(nil)

type Ramdiskstorage struct {
	/* For testing and exercising the client without a real device backing
	   store we make a simple ramdisk, a map of block start position to block
	   data. blocks nobody ever wrote read back as zeroes, like a fresh disk. */

	m_log        *tools.Nixomosetools_logger
	m_block_size uint32
	m_ramdisk    map[uint64][]byte
}

func New_ramdiskstorage(log *tools.Nixomosetools_logger, block_size uint32) *Ramdiskstorage {
	var ret Ramdiskstorage
	ret.m_log = log
	ret.m_block_size = block_size
	ret.m_ramdisk = make(map[uint64][]byte)
	return &ret
}

func (this *Ramdiskstorage) Get_block_size() uint32 {
	return this.m_block_size
}

func (this *Ramdiskstorage) Read_block(start_in_bytes uint64, length uint32, dataout []byte) tools.Ret {
	/* the request can span many blocks but any one of them may or may not
	   have been written yet, so we go one block at a time. */
	var start_copy_location = 0
	for length > 0 {

		var found bool
		var data []byte
		data, found = this.m_ramdisk[start_in_bytes]

		if found == false {
			// a block nobody wrote, return zeroes for it
			data = make([]byte, this.m_block_size)
		}

		// copy it right into the caller's buffer at the right spot
		var copied int = copy(dataout[start_copy_location:start_copy_location+int(this.m_block_size)], data)
		if copied != int(this.m_block_size) {
			return tools.ErrorWithCode(this.m_log, int(syscall.ENODATA), "unable to copy data from ramdisk, only copied: ", copied)
		}

		start_in_bytes += uint64(this.m_block_size)
		start_copy_location += int(this.m_block_size)
		length -= this.m_block_size
	}

	return nil
}

func (this *Ramdiskstorage) Write_block(start_in_bytes uint64, length uint32, data []byte) tools.Ret {
	// break up the write into blocks and write each one to the map
	var block_size int = int(this.m_block_size)
	var start_copy_location = 0
	for length > 0 {
		var d = make([]byte, block_size)
		var copied int = copy(d, data[start_copy_location:start_copy_location+block_size])
		if copied != block_size {
			return tools.ErrorWithCode(this.m_log, int(syscall.ENODATA), "unable to copy data to write to ramdisk, only copied: ", copied)
		}
		this.m_ramdisk[start_in_bytes] = d
		start_in_bytes += uint64(this.m_block_size)
		start_copy_location += block_size
		length -= this.m_block_size
	}
	return nil
}

func (this *Ramdiskstorage) Discard_block(start_in_bytes uint64, length uint32) tools.Ret {
	// discarded blocks just fall out of the map and read back as zeroes again
	for length > 0 {
		delete(this.m_ramdisk, start_in_bytes)
		start_in_bytes += uint64(this.m_block_size)
		length -= this.m_block_size
	}
	return nil
}
