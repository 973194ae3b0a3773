// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifoclientlib

/* Buffer slices are how a caller tells Read_at and Write_at where the data
   lives. two flavors:

   vmo backed: a byte range inside a memory buffer the caller already attached
   to the device. the device reads or writes that range directly, one fifo
   request covers the whole call. the fast path.

   plain memory: any old []byte the caller has, nothing attached. the client
   stages it through its own small pre-attached scratch buffer one chunk at a
   time, which costs a copy per chunk and serializes against other plain
   memory calls, but works on memory the device has never heard of.

   a Buffer_slice is the source for writes, a Mutable_buffer_slice is the
   destination for reads. */

type Buffer_slice struct {
	m_vmoid      uint16
	m_vmo_offset uint64 // byte offset into the attached vmo
	m_length     uint64
	m_memory     []byte // non-nil means the plain memory flavor
}

/* the vmoid's id is copied in, the caller's vmoid stays live and the caller
   still owns releasing it. */
func New_vmo_buffer_slice(vmoid *Vmoid, offset_in_bytes uint64, length_in_bytes uint64) *Buffer_slice {
	var b Buffer_slice
	b.m_vmoid = vmoid.Get_id()
	b.m_vmo_offset = offset_in_bytes
	b.m_length = length_in_bytes
	return &b
}

func New_memory_buffer_slice(data []byte) *Buffer_slice {
	var b Buffer_slice
	b.m_memory = data
	return &b
}

func (this *Buffer_slice) Is_vmo_backed() bool {
	return this.m_memory == nil
}

func (this *Buffer_slice) Get_length() uint64 {
	if this.m_memory != nil {
		return uint64(len(this.m_memory))
	}
	return this.m_length
}

type Mutable_buffer_slice struct {
	m_vmoid      uint16
	m_vmo_offset uint64
	m_length     uint64
	m_memory     []byte
}

func New_vmo_mutable_buffer_slice(vmoid *Vmoid, offset_in_bytes uint64, length_in_bytes uint64) *Mutable_buffer_slice {
	var b Mutable_buffer_slice
	b.m_vmoid = vmoid.Get_id()
	b.m_vmo_offset = offset_in_bytes
	b.m_length = length_in_bytes
	return &b
}

func New_memory_mutable_buffer_slice(data []byte) *Mutable_buffer_slice {
	var b Mutable_buffer_slice
	b.m_memory = data
	return &b
}

func (this *Mutable_buffer_slice) Is_vmo_backed() bool {
	return this.m_memory == nil
}

func (this *Mutable_buffer_slice) Get_length() uint64 {
	if this.m_memory != nil {
		return uint64(len(this.m_memory))
	}
	return this.m_length
}
