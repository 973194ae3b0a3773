// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* This module is the far side of the fifo: an in-process block device that
behaves the way the real remote device does, so the client can be wired up
and exercised without any actual device. it owns the server end of the fifo,
the table of attached vmos, and a storage mechanism to keep the blocks on.

the run loop is the same shape as every device request loop we've written:
block for requests, switch on the op code, respond, forever, until the fifo
dies out from under us which is the one permanent failure. */

package zfifoserverlib

import (
	"sync"
	"syscall"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifoclientlib/zfifointerfaces"
	"github.com/nixomose/zfifogoclient/zfifolib"
)

type Block_server struct {
	m_log         *tools.Nixomosetools_logger
	m_storage     zfifointerfaces.Storage_mechanism
	m_block_size  uint32
	m_block_count uint64

	m_server_end *zfifolib.Fifo_end
	m_client_end *zfifolib.Fifo_end

	m_lock       sync.Mutex
	m_vmos       map[uint16]*zfifolib.Memory_buffer
	m_next_vmoid uint16
	m_fifo_taken bool

	/* answer each drained batch back to front instead of front to back. the
	   wire contract says response order means nothing, this makes sure the
	   client actually believes that. */
	m_reverse_responses bool
}

var _ zfifointerfaces.Block_controller = &Block_server{}
var _ zfifointerfaces.Block_controller = (*Block_server)(nil)

func New_block_server(log *tools.Nixomosetools_logger, storage zfifointerfaces.Storage_mechanism,
	block_count uint64, fifo_depth int) (tools.Ret, *Block_server) {

	var block_size uint32 = storage.Get_block_size()
	if block_size == 0 {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "storage mechanism reports a block size of zero"), nil
	}

	var ret, server_end, client_end = zfifolib.New_fifo_pair(log, fifo_depth)
	if ret != nil {
		return ret, nil
	}

	var s Block_server
	s.m_log = log
	s.m_storage = storage
	s.m_block_size = block_size
	s.m_block_count = block_count
	s.m_server_end = server_end
	s.m_client_end = client_end
	s.m_vmos = make(map[uint16]*zfifolib.Memory_buffer)
	s.m_next_vmoid = 1 // zero is the invalid vmoid, never hand it out
	return nil, &s
}

func (this *Block_server) Set_reverse_responses(reverse bool) {
	this.m_lock.Lock()
	this.m_reverse_responses = reverse
	this.m_lock.Unlock()
}

/*****************************************************************************************************/
/*                                 the control plane, Block_controller                               */
/*****************************************************************************************************/

func (this *Block_server) Get_device_info() (tools.Ret, uint32, uint64) {
	return nil, this.m_block_size, this.m_block_count
}

func (this *Block_server) Get_fifo() (tools.Ret, *zfifolib.Fifo_end) {
	this.m_lock.Lock()
	defer this.m_lock.Unlock()
	if this.m_fifo_taken {
		return tools.ErrorWithCode(this.m_log, -int(syscall.EBUSY), "the fifo client end was already handed out"), nil
	}
	this.m_fifo_taken = true
	return nil, this.m_client_end
}

func (this *Block_server) Attach_vmo(vmo *zfifolib.Memory_buffer) (tools.Ret, uint16) {
	this.m_lock.Lock()
	defer this.m_lock.Unlock()
	/* find a free id, skipping zero on wrap. with 64k ids and registrations
	   being a handful per client this terminates immediately in practice. */
	var tried int = 0
	for {
		var id uint16 = this.m_next_vmoid
		this.m_next_vmoid++
		if this.m_next_vmoid == 0 {
			this.m_next_vmoid = 1
		}
		if id != 0 {
			var _, taken = this.m_vmos[id]
			if taken == false {
				this.m_vmos[id] = vmo
				return nil, id
			}
		}
		tried++
		if tried > 65536 {
			return tools.ErrorWithCode(this.m_log, -int(syscall.ENOSPC), "no free vmoids left to attach with"), 0
		}
	}
}

/*****************************************************************************************************/
/*                                         the request loop                                          */
/*****************************************************************************************************/

/* Run services requests until the fifo dies. run it in its own goroutine. */
func (this *Block_server) Run() {
	for {
		var batch []*zfifolib.Block_fifo_request
		for {
			var record, ok, ret = this.m_server_end.Read()
			if ret != nil {
				return // fifo is gone, so are we
			}
			if ok == false {
				break
			}
			var ret2, request = zfifolib.Decode_request(this.m_log, record)
			if ret2 != nil {
				this.m_log.Error("dropping undecodable fifo request record, error: ", ret2.Get_errmsg())
				continue
			}
			batch = append(batch, request)
		}

		if len(batch) == 0 {
			<-this.m_server_end.Signal()
			continue
		}

		this.m_lock.Lock()
		var reverse bool = this.m_reverse_responses
		this.m_lock.Unlock()
		if reverse {
			for i, j := 0, len(batch)-1; i < j; i, j = i+1, j-1 {
				batch[i], batch[j] = batch[j], batch[i]
			}
		}

		for _, request := range batch {
			var response zfifolib.Block_fifo_response = this.execute(request)
			if this.write_response(&response) == false {
				return
			}
		}
	}
}

/* Stop kills the fifo, which cancels everything the client has in flight and
   ends the run loop. this is what "the device went away" looks like. */
func (this *Block_server) Stop() {
	this.m_server_end.Close()
}

func (this *Block_server) execute(request *zfifolib.Block_fifo_request) zfifolib.Block_fifo_response {
	var response zfifolib.Block_fifo_response
	response.Request_id = request.Request_id
	response.Group_id = request.Group_id

	switch request.Op_code {
	case zfifolib.BLOCK_OP_READ:
		response.Status = this.do_read(request)
		if response.Status == 0 {
			response.Count = request.Block_count
		}
	case zfifolib.BLOCK_OP_WRITE:
		response.Status = this.do_write(request)
		if response.Status == 0 {
			response.Count = request.Block_count
		}
	case zfifolib.BLOCK_OP_CLOSE_VMO:
		response.Status = this.do_close_vmo(request)
	case zfifolib.BLOCK_OP_FLUSH, zfifolib.BLOCK_OP_TRIM:
		// reserved op codes, nobody sends them yet
		response.Status = -int32(syscall.ENOTSUP)
	default:
		this.m_log.Error("unsupported op code in fifo request: ", request.Op_code)
		response.Status = -int32(syscall.EINVAL)
	}
	return response
}

func (this *Block_server) lookup_vmo(vmoid uint16) *zfifolib.Memory_buffer {
	this.m_lock.Lock()
	defer this.m_lock.Unlock()
	return this.m_vmos[vmoid]
}

/* validate the block range and turn it into byte positions. */
func (this *Block_server) check_io_range(request *zfifolib.Block_fifo_request,
	vmo *zfifolib.Memory_buffer) (int32, uint64, uint64, uint32) {

	var block_size uint64 = uint64(this.m_block_size)
	if request.Device_block_offset+uint64(request.Block_count) > this.m_block_count {
		this.m_log.Error("io request for blocks ", request.Device_block_offset, "+", request.Block_count,
			" runs past the end of a ", this.m_block_count, " block device")
		return -int32(syscall.EINVAL), 0, 0, 0
	}
	var length uint64 = uint64(request.Block_count) * block_size
	if request.Vmo_block_offset*block_size+length > vmo.Get_size() {
		this.m_log.Error("io request runs past the end of vmoid ", request.Vmoid)
		return -int32(syscall.EINVAL), 0, 0, 0
	}
	return 0, request.Device_block_offset * block_size, request.Vmo_block_offset * block_size, uint32(length)
}

func (this *Block_server) do_read(request *zfifolib.Block_fifo_request) int32 {
	var vmo *zfifolib.Memory_buffer = this.lookup_vmo(request.Vmoid)
	if vmo == nil {
		this.m_log.Error("read request names unattached vmoid ", request.Vmoid)
		return -int32(syscall.EINVAL)
	}
	var status, device_bytes, vmo_bytes, length = this.check_io_range(request, vmo)
	if status != 0 {
		return status
	}

	var data []byte = make([]byte, length)
	var ret = this.m_storage.Read_block(device_bytes, length, data)
	if ret != nil {
		return errno_status(ret)
	}
	ret = vmo.Write_at(data, vmo_bytes)
	if ret != nil {
		return errno_status(ret)
	}
	return 0
}

func (this *Block_server) do_write(request *zfifolib.Block_fifo_request) int32 {
	var vmo *zfifolib.Memory_buffer = this.lookup_vmo(request.Vmoid)
	if vmo == nil {
		this.m_log.Error("write request names unattached vmoid ", request.Vmoid)
		return -int32(syscall.EINVAL)
	}
	var status, device_bytes, vmo_bytes, length = this.check_io_range(request, vmo)
	if status != 0 {
		return status
	}

	var data []byte = make([]byte, length)
	var ret = vmo.Read_at(data, vmo_bytes)
	if ret != nil {
		return errno_status(ret)
	}
	ret = this.m_storage.Write_block(device_bytes, length, data)
	if ret != nil {
		return errno_status(ret)
	}
	return 0
}

func (this *Block_server) do_close_vmo(request *zfifolib.Block_fifo_request) int32 {
	this.m_lock.Lock()
	defer this.m_lock.Unlock()
	var _, found = this.m_vmos[request.Vmoid]
	if found == false {
		return -int32(syscall.EINVAL)
	}
	delete(this.m_vmos, request.Vmoid)
	return 0
}

/* write_response pushes one response record, waiting out a full fifo. false
   means the fifo died. */
func (this *Block_server) write_response(response *zfifolib.Block_fifo_response) bool {
	var ret, record = zfifolib.Encode_response(this.m_log, response)
	if ret != nil {
		this.m_log.Error("unable to encode fifo response, dropping it, error: ", ret.Get_errmsg())
		return true
	}
	for {
		var accepted, ret2 = this.m_server_end.Write([]zfifolib.Fifo_record{record})
		if ret2 != nil {
			return false
		}
		if accepted == 1 {
			return true
		}
		<-this.m_server_end.Signal()
	}
}

/* errno_status maps a storage tools.Ret onto the wire's negative errno
   convention, whichever sign the mechanism reported it with. */
func errno_status(ret tools.Ret) int32 {
	var code int = ret.Get_errcode()
	if code > 0 {
		code = -code
	}
	if code == 0 {
		code = -int(syscall.EIO)
	}
	return int32(code)
}
