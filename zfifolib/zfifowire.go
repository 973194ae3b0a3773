// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifolib

/* The fifo wire format for the zfifo block protocol. */

/* everything here must match the device side exactly in size and shape or
   nothing's going to work right. unlike the C-header ports we've done before
   there is no compiler struct layout to line up with, the layout IS this file:
   fields serialize in declaration order, little endian, fixed widths, no
   implicit padding. if you add a field here you have to add it on the device
   side too, and you have to keep both records at FIFO_RECORD_SIZE_BYTES. */

import (
	"bytes"
	"encoding/binary"
	"syscall"

	"github.com/nixomose/nixomosegotools/tools"
)

/* operation codes for requests from the client to the block device. */

const BLOCK_OP_READ u32 = 1
const BLOCK_OP_WRITE u32 = 2
const BLOCK_OP_FLUSH u32 = 3 // reserved, the client never sends this yet.
const BLOCK_OP_TRIM u32 = 4  // reserved, the client never sends this yet.
const BLOCK_OP_CLOSE_VMO u32 = 5

type Fifo_record = [FIFO_RECORD_SIZE_BYTES]byte

/* all offsets and counts in the request are in blocks not bytes, the device
   only thinks in blocks. the vmoid names a previously attached vmo, the data
   for the request lives there, not in this record. */
type Block_fifo_request struct {
	Op_code             u32
	Request_id          u32
	Group_id            u16
	Vmoid               u16
	Block_count         u32
	Vmo_block_offset    u64
	Device_block_offset u64
}

/* status is zero for success or a negative errno from the device.
   request_id is copied back verbatim from the request so the client can match
   the response to the caller that's waiting on it. count is how many blocks
   the device actually processed. */
type Block_fifo_response struct {
	Status     s32
	Request_id u32
	Group_id   u16
	Padding1   u16
	Count      u32
	Padding2   u64
	Padding3   u64
}

/* 4+4+2+2+4+8+8 comes to 32 for both of them, which is handy, one record size
   for both directions. the encode functions verify it so a wayward edit fails
   the first time anything is sent rather than corrupting the far side. */

func Encode_request(log *tools.Nixomosetools_logger, request *Block_fifo_request) (tools.Ret, Fifo_record) {
	var record Fifo_record
	structbuf := &bytes.Buffer{}
	err := binary.Write(structbuf, binary.LittleEndian, request)
	if err != nil {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "unable to serialize block fifo request: ", err.Error()), record
	}
	if structbuf.Len() != FIFO_RECORD_SIZE_BYTES {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "block fifo request serialized to ", structbuf.Len(),
			" bytes, expected ", FIFO_RECORD_SIZE_BYTES), record
	}
	copy(record[:], structbuf.Bytes())
	return nil, record
}

func Decode_request(log *tools.Nixomosetools_logger, record Fifo_record) (tools.Ret, *Block_fifo_request) {
	/* we don't want bytes.newbuffer to steal the caller's record, so copy it out first */
	var recordspace []byte = make([]byte, FIFO_RECORD_SIZE_BYTES)
	copy(recordspace, record[:])
	var bback *bytes.Buffer = bytes.NewBuffer(recordspace)

	var request Block_fifo_request
	var err error = binary.Read(bback, binary.LittleEndian, &request)
	if err != nil {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "unable to deserialize block fifo request: ", err.Error()), nil
	}
	return nil, &request
}

func Encode_response(log *tools.Nixomosetools_logger, response *Block_fifo_response) (tools.Ret, Fifo_record) {
	var record Fifo_record
	structbuf := &bytes.Buffer{}
	err := binary.Write(structbuf, binary.LittleEndian, response)
	if err != nil {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "unable to serialize block fifo response: ", err.Error()), record
	}
	if structbuf.Len() != FIFO_RECORD_SIZE_BYTES {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "block fifo response serialized to ", structbuf.Len(),
			" bytes, expected ", FIFO_RECORD_SIZE_BYTES), record
	}
	copy(record[:], structbuf.Bytes())
	return nil, record
}

func Decode_response(log *tools.Nixomosetools_logger, record Fifo_record) (tools.Ret, *Block_fifo_response) {
	var recordspace []byte = make([]byte, FIFO_RECORD_SIZE_BYTES)
	copy(recordspace, record[:])
	var bback *bytes.Buffer = bytes.NewBuffer(recordspace)

	var response Block_fifo_response
	var err error = binary.Read(bback, binary.LittleEndian, &response)
	if err != nil {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "unable to deserialize block fifo response: ", err.Error()), nil
	}
	return nil, &response
}
