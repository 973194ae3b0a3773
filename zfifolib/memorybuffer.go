// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifolib

/* A memory buffer is the region of memory that both the client and the block
   device can see once it has been attached through the control plane. the
   fifo records refer to an attached buffer by its 16 bit vmoid, the bulk data
   for every read and write moves through here instead of through the fifo. */

import (
	"sync"
	"syscall"

	"github.com/nixomose/nixomosegotools/tools"
)

type Memory_buffer struct {
	m_log  *tools.Nixomosetools_logger
	m_lock sync.Mutex
	m_data []byte
}

func New_memory_buffer(log *tools.Nixomosetools_logger, size_in_bytes uint64) *Memory_buffer {
	var m Memory_buffer
	m.m_log = log
	m.m_data = make([]byte, size_in_bytes)
	return &m
}

func (this *Memory_buffer) Get_size() uint64 {
	return uint64(len(this.m_data))
}

func (this *Memory_buffer) Read_at(dest []byte, offset_in_bytes uint64) tools.Ret {
	this.m_lock.Lock()
	defer this.m_lock.Unlock()
	if offset_in_bytes+uint64(len(dest)) > uint64(len(this.m_data)) {
		return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "read of ", len(dest), " bytes at offset ",
			offset_in_bytes, " runs past the end of a ", len(this.m_data), " byte memory buffer")
	}
	var copied int = copy(dest, this.m_data[offset_in_bytes:offset_in_bytes+uint64(len(dest))])
	if copied != len(dest) {
		return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "unable to copy data out of memory buffer, ",
			"copied: ", copied, " expected: ", len(dest))
	}
	return nil
}

func (this *Memory_buffer) Write_at(src []byte, offset_in_bytes uint64) tools.Ret {
	this.m_lock.Lock()
	defer this.m_lock.Unlock()
	if offset_in_bytes+uint64(len(src)) > uint64(len(this.m_data)) {
		return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "write of ", len(src), " bytes at offset ",
			offset_in_bytes, " runs past the end of a ", len(this.m_data), " byte memory buffer")
	}
	var copied int = copy(this.m_data[offset_in_bytes:], src)
	if copied != len(src) {
		return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "unable to copy data into memory buffer, ",
			"copied: ", copied, " expected: ", len(src))
	}
	return nil
}
