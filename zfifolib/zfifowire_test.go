// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifolib

import (
	"encoding/binary"
	"testing"

	"github.com/nixomose/nixomosegotools/tools"
)

/* the byte layout is the wire contract with the device side, so this test
   pins every field to its absolute offset, not just a round trip. */
func TestRequestRecordLayout(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)

	var request Block_fifo_request
	request.Op_code = BLOCK_OP_WRITE
	request.Request_id = 0x11223344
	request.Group_id = 0x5566
	request.Vmoid = 0x7788
	request.Block_count = 0x99aabbcc
	request.Vmo_block_offset = 0x0102030405060708
	request.Device_block_offset = 0x1112131415161718

	var ret, record = Encode_request(log, &request)
	if ret != nil {
		t.Fatalf("encode failed: %s", ret.Get_errmsg())
	}

	if binary.LittleEndian.Uint32(record[0:4]) != uint32(BLOCK_OP_WRITE) {
		t.Error("op_code is not at offset 0")
	}
	if binary.LittleEndian.Uint32(record[4:8]) != 0x11223344 {
		t.Error("request_id is not at offset 4")
	}
	if binary.LittleEndian.Uint16(record[8:10]) != 0x5566 {
		t.Error("group_id is not at offset 8")
	}
	if binary.LittleEndian.Uint16(record[10:12]) != 0x7788 {
		t.Error("vmoid is not at offset 10")
	}
	if binary.LittleEndian.Uint32(record[12:16]) != 0x99aabbcc {
		t.Error("block_count is not at offset 12")
	}
	if binary.LittleEndian.Uint64(record[16:24]) != 0x0102030405060708 {
		t.Error("vmo_block_offset is not at offset 16")
	}
	if binary.LittleEndian.Uint64(record[24:32]) != 0x1112131415161718 {
		t.Error("device_block_offset is not at offset 24")
	}

	var ret2, decoded = Decode_request(log, record)
	if ret2 != nil {
		t.Fatalf("decode failed: %s", ret2.Get_errmsg())
	}
	if *decoded != request {
		t.Errorf("decoded request %+v does not match original %+v", *decoded, request)
	}
}

func TestResponseRecordLayout(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)

	var response Block_fifo_response
	response.Status = -22 // an EINVAL the way the device would send it
	response.Request_id = 0xdeadbeef
	response.Group_id = 0x0102
	response.Count = 7

	var ret, record = Encode_response(log, &response)
	if ret != nil {
		t.Fatalf("encode failed: %s", ret.Get_errmsg())
	}

	if int32(binary.LittleEndian.Uint32(record[0:4])) != -22 {
		t.Error("status is not at offset 0")
	}
	if binary.LittleEndian.Uint32(record[4:8]) != 0xdeadbeef {
		t.Error("request_id is not at offset 4")
	}
	if binary.LittleEndian.Uint16(record[8:10]) != 0x0102 {
		t.Error("group_id is not at offset 8")
	}
	if binary.LittleEndian.Uint32(record[12:16]) != 7 {
		t.Error("count is not at offset 12")
	}

	var ret2, decoded = Decode_response(log, record)
	if ret2 != nil {
		t.Fatalf("decode failed: %s", ret2.Get_errmsg())
	}
	if *decoded != response {
		t.Errorf("decoded response %+v does not match original %+v", *decoded, response)
	}
}
