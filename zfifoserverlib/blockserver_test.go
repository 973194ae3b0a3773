// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifoserverlib

import (
	"syscall"
	"testing"
	"time"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifolib"
	"github.com/nixomose/zfifogoclient/zfifoserverlib/storage"
)

func make_test_server(t *testing.T) (*tools.Nixomosetools_logger, *Block_server) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var store = storage.New_ramdiskstorage(log, 1024)
	var ret, server = New_block_server(log, store, 256, zfifolib.DEFAULT_FIFO_DEPTH)
	if ret != nil {
		t.Fatalf("unable to make block server: %s", ret.Get_errmsg())
	}
	return log, server
}

/* push one request record through the raw fifo and wait the response out, the
   way the client's poller would. */
func send_one(t *testing.T, log *tools.Nixomosetools_logger, end *zfifolib.Fifo_end,
	request *zfifolib.Block_fifo_request) *zfifolib.Block_fifo_response {

	var ret, record = zfifolib.Encode_request(log, request)
	if ret != nil {
		t.Fatalf("encode failed: %s", ret.Get_errmsg())
	}
	var accepted, wret = end.Write([]zfifolib.Fifo_record{record})
	if wret != nil {
		t.Fatalf("fifo write failed: %s", wret.Get_errmsg())
	}
	if accepted != 1 {
		t.Fatalf("fifo accepted %d records, expected 1", accepted)
	}

	var deadline = time.Now().Add(10 * time.Second)
	for {
		var response_record, ok, rret = end.Read()
		if rret != nil {
			t.Fatalf("fifo read failed: %s", rret.Get_errmsg())
		}
		if ok {
			var ret2, response = zfifolib.Decode_response(log, response_record)
			if ret2 != nil {
				t.Fatalf("decode failed: %s", ret2.Get_errmsg())
			}
			return response
		}
		if time.Now().After(deadline) {
			t.Fatal("no response from the server in time")
		}
		select {
		case <-end.Signal():
		case <-time.After(time.Until(deadline)):
		}
	}
}

func TestAttachVmoIdsAreUniqueAndNonzero(t *testing.T) {
	var log, server = make_test_server(t)
	var seen = make(map[uint16]bool)
	for lp := 0; lp < 100; lp++ {
		var vmo = zfifolib.New_memory_buffer(log, 1024)
		var ret, id = server.Attach_vmo(vmo)
		if ret != nil {
			t.Fatalf("attach %d failed: %s", lp, ret.Get_errmsg())
		}
		if id == 0 {
			t.Fatal("the server handed out the invalid vmoid")
		}
		if seen[id] {
			t.Fatalf("the server handed out vmoid %d twice", id)
		}
		seen[id] = true
	}
}

func TestFifoCanOnlyBeTakenOnce(t *testing.T) {
	var _, server = make_test_server(t)
	var ret, end = server.Get_fifo()
	if ret != nil {
		t.Fatalf("first get_fifo failed: %s", ret.Get_errmsg())
	}
	if end == nil {
		t.Fatal("first get_fifo returned no fifo end")
	}
	var ret2, _ = server.Get_fifo()
	if ret2 == nil {
		t.Fatal("second get_fifo did not fail")
	}
	if ret2.Get_errcode() != -int(syscall.EBUSY) {
		t.Fatalf("second get_fifo returned error code %d, expected %d", ret2.Get_errcode(), -int(syscall.EBUSY))
	}
}

func TestUnknownOpCodeAnswersEinval(t *testing.T) {
	var log, server = make_test_server(t)
	var _, end = server.Get_fifo()
	go server.Run()
	defer server.Stop()

	var request zfifolib.Block_fifo_request
	request.Op_code = 99
	request.Request_id = 7

	var response = send_one(t, log, end, &request)
	if response.Request_id != 7 {
		t.Fatalf("response carries request id %d, expected 7", response.Request_id)
	}
	if response.Status != -int32(syscall.EINVAL) {
		t.Fatalf("unknown op code answered status %d, expected %d", response.Status, -int32(syscall.EINVAL))
	}
}

func TestReservedOpCodesAnswerEnotsup(t *testing.T) {
	var log, server = make_test_server(t)
	var _, end = server.Get_fifo()
	go server.Run()
	defer server.Stop()

	for _, op := range []uint32{zfifolib.BLOCK_OP_FLUSH, zfifolib.BLOCK_OP_TRIM} {
		var request zfifolib.Block_fifo_request
		request.Op_code = op
		var response = send_one(t, log, end, &request)
		if response.Status != -int32(syscall.ENOTSUP) {
			t.Fatalf("reserved op %d answered status %d, expected %d", op, response.Status, -int32(syscall.ENOTSUP))
		}
	}
}

func TestCloseVmoForgetsTheRegistration(t *testing.T) {
	var log, server = make_test_server(t)
	var _, end = server.Get_fifo()
	go server.Run()
	defer server.Stop()

	var vmo = zfifolib.New_memory_buffer(log, 1024)
	var ret, id = server.Attach_vmo(vmo)
	if ret != nil {
		t.Fatalf("attach failed: %s", ret.Get_errmsg())
	}

	var request zfifolib.Block_fifo_request
	request.Op_code = zfifolib.BLOCK_OP_CLOSE_VMO
	request.Vmoid = id

	var response = send_one(t, log, end, &request)
	if response.Status != 0 {
		t.Fatalf("close_vmo answered status %d, expected 0", response.Status)
	}

	// the registration is gone, closing it again is the caller's mistake
	response = send_one(t, log, end, &request)
	if response.Status != -int32(syscall.EINVAL) {
		t.Fatalf("second close_vmo answered status %d, expected %d", response.Status, -int32(syscall.EINVAL))
	}

	// and io against the dead vmoid fails the same way
	request.Op_code = zfifolib.BLOCK_OP_READ
	request.Block_count = 1
	response = send_one(t, log, end, &request)
	if response.Status != -int32(syscall.EINVAL) {
		t.Fatalf("read on a closed vmoid answered status %d, expected %d", response.Status, -int32(syscall.EINVAL))
	}
}

func TestIoPastTheEndOfTheDeviceAnswersEinval(t *testing.T) {
	var log, server = make_test_server(t)
	var _, end = server.Get_fifo()
	go server.Run()
	defer server.Stop()

	var vmo = zfifolib.New_memory_buffer(log, 1024)
	var ret, id = server.Attach_vmo(vmo)
	if ret != nil {
		t.Fatalf("attach failed: %s", ret.Get_errmsg())
	}

	var request zfifolib.Block_fifo_request
	request.Op_code = zfifolib.BLOCK_OP_READ
	request.Vmoid = id
	request.Block_count = 1
	request.Device_block_offset = 256 // the device is 256 blocks, 0..255

	var response = send_one(t, log, end, &request)
	if response.Status != -int32(syscall.EINVAL) {
		t.Fatalf("read past the end answered status %d, expected %d", response.Status, -int32(syscall.EINVAL))
	}
}

func TestSuccessfulIoReportsTheBlockCount(t *testing.T) {
	var log, server = make_test_server(t)
	var _, end = server.Get_fifo()
	go server.Run()
	defer server.Stop()

	var vmo = zfifolib.New_memory_buffer(log, 4*1024)
	var ret, id = server.Attach_vmo(vmo)
	if ret != nil {
		t.Fatalf("attach failed: %s", ret.Get_errmsg())
	}

	var request zfifolib.Block_fifo_request
	request.Op_code = zfifolib.BLOCK_OP_WRITE
	request.Vmoid = id
	request.Block_count = 4

	var response = send_one(t, log, end, &request)
	if response.Status != 0 {
		t.Fatalf("write answered status %d, expected 0", response.Status)
	}
	if response.Count != 4 {
		t.Fatalf("write answered count %d, expected 4", response.Count)
	}
}
