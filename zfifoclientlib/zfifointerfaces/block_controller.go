// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

// Package zfifointerfaces has a package comment to make the linter happy
package zfifointerfaces

import (
	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifolib"
)

type Block_controller interface {

	/* this is the synchronous control plane the client calls exactly once each
	at construction time. everything after construction goes over the fifo.
	any failure from any of these is fatal to building the client, there is no
	partial startup. */

	// the device geometry, block size in bytes and total number of blocks.
	Get_device_info() (tools.Ret, uint32, uint64)

	/* the client's end of the request/response fifo. the device keeps the
	other end. you only get to ask once per device. */
	Get_fifo() (tools.Ret, *zfifolib.Fifo_end)

	/* register a memory buffer with the device and get back the 16 bit vmoid
	the fifo records will name it by. registrations die with the fifo, the
	device forgets all of them when the fifo is torn down. */
	Attach_vmo(vmo *zfifolib.Memory_buffer) (tools.Ret, uint16)
}
