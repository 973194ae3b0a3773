// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifolib

type s32 = int32
type u16 = uint16
type u32 = uint32
type u64 = uint64

/* every record that goes over the fifo serializes to exactly this many bytes,
   requests and responses both. the fifo only moves records of this size, the
   actual block data never travels through the fifo, it goes through a vmo that
   was registered with the device ahead of time. */

const FIFO_RECORD_SIZE_BYTES int = 32

const DEFAULT_FIFO_DEPTH int = 64
