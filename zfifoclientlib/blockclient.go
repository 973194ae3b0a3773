// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* This module is the public face of the client: a remote block device you can
read and write in whole blocks. construction does the three control plane
calls (geometry, fifo, scratch buffer attach) and starts the poller, after
that everything is fifo requests. */

package zfifoclientlib

import (
	"sync"
	"syscall"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifoclientlib/zfifointerfaces"
	"github.com/nixomose/zfifogoclient/zfifolib"
)

/* the scratch buffer the client attaches for staging plain memory io. 64k is
   a whole fifo request worth of useful work per chunk without tying up any
   real amount of memory per client. */
const TEMP_VMO_SIZE_BYTES uint64 = 65536

type Remote_block_device struct {
	m_log        *tools.Nixomosetools_logger
	m_controller zfifointerfaces.Block_controller
	m_fifo       *zfifolib.Fifo_end
	m_fifo_state *Fifo_state
	m_block_size uint32
	m_block_count uint64

	/* the scratch vmo for plain memory io. its own lock, separate from the
	   request table lock, so registered-buffer io never queues up behind
	   scratch staging. held across the whole chunk loop of one call, that's
	   the point, chunks of one call share the one scratch buffer. */
	m_temp_lock  sync.Mutex
	m_temp_vmo   *zfifolib.Memory_buffer
	m_temp_vmoid uint16
}

func New_remote_block_device(log *tools.Nixomosetools_logger,
	controller zfifointerfaces.Block_controller) (tools.Ret, *Remote_block_device) {

	var ret, block_size, block_count = controller.Get_device_info()
	if ret != nil {
		return tools.Error(log, "unable to get device info: ", ret.Get_errmsg()), nil
	}
	if block_size == 0 {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "device reports a block size of zero"), nil
	}
	if TEMP_VMO_SIZE_BYTES%uint64(block_size) != 0 {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "device block size ", block_size,
			" does not divide the scratch buffer size ", TEMP_VMO_SIZE_BYTES), nil
	}

	var fifo *zfifolib.Fifo_end
	ret, fifo = controller.Get_fifo()
	if ret != nil {
		return tools.Error(log, "unable to get fifo from device: ", ret.Get_errmsg()), nil
	}

	var temp_vmo *zfifolib.Memory_buffer = zfifolib.New_memory_buffer(log, TEMP_VMO_SIZE_BYTES)
	var temp_vmoid uint16
	ret, temp_vmoid = controller.Attach_vmo(temp_vmo)
	if ret != nil {
		return tools.Error(log, "unable to attach scratch buffer to device: ", ret.Get_errmsg()), nil
	}

	var d Remote_block_device
	d.m_log = log
	d.m_controller = controller
	d.m_fifo = fifo
	d.m_fifo_state = New_fifo_state(log, fifo)
	d.m_block_size = block_size
	d.m_block_count = block_count
	d.m_temp_vmo = temp_vmo
	d.m_temp_vmoid = temp_vmoid

	var poller Fifo_poller = New_fifo_poller(log, d.m_fifo_state)
	go poller.Run()

	return nil, &d
}

func (this *Remote_block_device) Get_block_size() uint32 {
	return this.m_block_size
}

func (this *Remote_block_device) Get_block_count() uint64 {
	return this.m_block_count
}

/* Attach_vmo registers a memory buffer with the device so vmo backed slices
   can name it. the vmoid that comes back must eventually go through
   Detach_vmo (or Take_id during teardown), it will panic the process if you
   just drop it. */
func (this *Remote_block_device) Attach_vmo(vmo *zfifolib.Memory_buffer) (tools.Ret, *Vmoid) {
	var ret, id = this.m_controller.Attach_vmo(vmo)
	if ret != nil {
		return ret, nil
	}
	return nil, New_vmoid(id)
}

/* Detach_vmo tells the device to forget the registration and consumes the
   vmoid on success. on failure the vmoid is still live and still the
   caller's problem. */
func (this *Remote_block_device) Detach_vmo(vmoid *Vmoid) tools.Ret {
	if vmoid.Is_valid() == false {
		return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "detach of an invalid vmoid")
	}
	var request zfifolib.Block_fifo_request
	request.Op_code = zfifolib.BLOCK_OP_CLOSE_VMO
	request.Vmoid = vmoid.Get_id()

	var ret = this.send_and_wait(&request)
	if ret != nil {
		return ret
	}
	vmoid.Take_id()
	return nil
}

/* Read_at fills the slice from the device starting at device_offset_in_bytes.
   offset and length must be block multiples, there is no partial block io. */
func (this *Remote_block_device) Read_at(dest *Mutable_buffer_slice, device_offset_in_bytes uint64) tools.Ret {
	var ret = this.check_alignment(device_offset_in_bytes, dest.Get_length())
	if ret != nil {
		return ret
	}
	var block_size uint64 = uint64(this.m_block_size)

	if dest.Is_vmo_backed() {
		if dest.m_vmo_offset%block_size != 0 {
			return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "vmo offset ", dest.m_vmo_offset,
				" is not a multiple of the block size ", this.m_block_size)
		}
		var request zfifolib.Block_fifo_request
		request.Op_code = zfifolib.BLOCK_OP_READ
		request.Vmoid = dest.m_vmoid
		request.Block_count = uint32(dest.m_length / block_size)
		request.Vmo_block_offset = dest.m_vmo_offset / block_size
		request.Device_block_offset = device_offset_in_bytes / block_size
		return this.send_and_wait(&request)
	}

	/* plain memory: pull each chunk into the scratch vmo then copy it out to
	   the caller. strictly one chunk at a time, they all share the scratch. */
	this.m_temp_lock.Lock()
	defer this.m_temp_lock.Unlock()

	var memory []byte = dest.m_memory
	var length uint64 = dest.Get_length()
	var pos uint64 = 0
	for pos < length {
		var chunk uint64 = length - pos
		if chunk > TEMP_VMO_SIZE_BYTES {
			chunk = TEMP_VMO_SIZE_BYTES
		}

		var request zfifolib.Block_fifo_request
		request.Op_code = zfifolib.BLOCK_OP_READ
		request.Vmoid = this.m_temp_vmoid
		request.Block_count = uint32(chunk / block_size)
		request.Vmo_block_offset = 0
		request.Device_block_offset = (device_offset_in_bytes + pos) / block_size

		ret = this.send_and_wait(&request)
		if ret != nil {
			return ret
		}
		ret = this.m_temp_vmo.Read_at(memory[pos:pos+chunk], 0)
		if ret != nil {
			return ret
		}
		pos += chunk
	}
	return nil
}

/* Write_at writes the slice to the device starting at device_offset_in_bytes.
   same alignment rules as Read_at. */
func (this *Remote_block_device) Write_at(src *Buffer_slice, device_offset_in_bytes uint64) tools.Ret {
	var ret = this.check_alignment(device_offset_in_bytes, src.Get_length())
	if ret != nil {
		return ret
	}
	var block_size uint64 = uint64(this.m_block_size)

	if src.Is_vmo_backed() {
		if src.m_vmo_offset%block_size != 0 {
			return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "vmo offset ", src.m_vmo_offset,
				" is not a multiple of the block size ", this.m_block_size)
		}
		var request zfifolib.Block_fifo_request
		request.Op_code = zfifolib.BLOCK_OP_WRITE
		request.Vmoid = src.m_vmoid
		request.Block_count = uint32(src.m_length / block_size)
		request.Vmo_block_offset = src.m_vmo_offset / block_size
		request.Device_block_offset = device_offset_in_bytes / block_size
		return this.send_and_wait(&request)
	}

	this.m_temp_lock.Lock()
	defer this.m_temp_lock.Unlock()

	var memory []byte = src.m_memory
	var length uint64 = src.Get_length()
	var pos uint64 = 0
	for pos < length {
		var chunk uint64 = length - pos
		if chunk > TEMP_VMO_SIZE_BYTES {
			chunk = TEMP_VMO_SIZE_BYTES
		}

		ret = this.m_temp_vmo.Write_at(memory[pos:pos+chunk], 0)
		if ret != nil {
			return ret
		}

		var request zfifolib.Block_fifo_request
		request.Op_code = zfifolib.BLOCK_OP_WRITE
		request.Vmoid = this.m_temp_vmoid
		request.Block_count = uint32(chunk / block_size)
		request.Vmo_block_offset = 0
		request.Device_block_offset = (device_offset_in_bytes + pos) / block_size

		ret = this.send_and_wait(&request)
		if ret != nil {
			return ret
		}
		pos += chunk
	}
	return nil
}

/* Close tears the client down: release the scratch registration if the fifo
   is still alive, then kill the fifo, which terminates the table and ends the
   poller. outstanding requests resolve canceled. */
func (this *Remote_block_device) Close() tools.Ret {
	if this.m_fifo_state.Is_terminated() == false && this.m_temp_vmoid != VMOID_INVALID {
		var request zfifolib.Block_fifo_request
		request.Op_code = zfifolib.BLOCK_OP_CLOSE_VMO
		request.Vmoid = this.m_temp_vmoid
		var ret = this.send_and_wait(&request)
		if ret != nil {
			// not fatal, the device forgets all registrations at teardown anyway
			this.m_log.Debug("unable to detach scratch buffer during close: ", ret.Get_errmsg())
		}
		this.m_temp_vmoid = VMOID_INVALID
	}
	this.m_fifo.Close()
	this.m_fifo_state.Terminate()
	return nil
}

func (this *Remote_block_device) check_alignment(device_offset_in_bytes uint64, length_in_bytes uint64) tools.Ret {
	var block_size uint64 = uint64(this.m_block_size)
	if device_offset_in_bytes%block_size != 0 {
		return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "device offset ", device_offset_in_bytes,
			" is not a multiple of the block size ", this.m_block_size)
	}
	if length_in_bytes%block_size != 0 {
		return tools.ErrorWithCode(this.m_log, -int(syscall.EINVAL), "length ", length_in_bytes,
			" is not a multiple of the block size ", this.m_block_size)
	}
	return nil
}

func (this *Remote_block_device) send_and_wait(request *zfifolib.Block_fifo_request) tools.Ret {
	var ret, future = this.m_fifo_state.Send(request)
	if ret != nil {
		return ret
	}
	return future.Wait()
}
