// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifointerfaces

import "github.com/nixomose/nixomosegotools/tools"

type Storage_mechanism interface {

	/* what the block device server stores blocks on. all positions are in
	bytes and the server only ever calls with block aligned values. */

	Read_block(start_in_bytes uint64, length uint32, data []byte) tools.Ret

	Write_block(start_in_bytes uint64, length uint32, data []byte) tools.Ret

	Discard_block(start_in_bytes uint64, length uint32) tools.Ret

	Get_block_size() uint32
}
