// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* This module is the fixed depth duplex record queue that the client and the
block device exchange request and response records over.

It is two rings, one for each direction, behind one lock, and a pulse channel
per end so a waiter can park until its end might be able to make progress
again. The contract both sides code against:

  Write returns how many records it accepted. fewer than you gave it (or zero)
  means the ring filled up, that is not an error, wait on Signal and try the
  rest again.

  Read returns one record and true, or false meaning nothing is there right
  now, again wait on Signal.

  a non-nil tools.Ret from either one means the fifo is dead (the other side
  closed it or we did) and it is never coming back, there is no would-block
  confusion with the fatal case, they are reported on different legs of the
  return.

Only bump the pulse channel with a non-blocking send, it has capacity one, a
pulse that finds the buffer full is a pulse the waiter was already going to
see. */

package zfifolib

import (
	"sync"
	"syscall"

	"github.com/nixomose/nixomosegotools/tools"
)

type fifo_ring struct {
	m_records []Fifo_record
	m_head    int // position of the next record to read
	m_count   int
}

func (this *fifo_ring) push(record Fifo_record) bool {
	if this.m_count == len(this.m_records) {
		return false
	}
	var pos int = (this.m_head + this.m_count) % len(this.m_records)
	this.m_records[pos] = record
	this.m_count++
	return true
}

func (this *fifo_ring) pop() (Fifo_record, bool) {
	var record Fifo_record
	if this.m_count == 0 {
		return record, false
	}
	record = this.m_records[this.m_head]
	this.m_head = (this.m_head + 1) % len(this.m_records)
	this.m_count--
	return record, true
}

type fifo_shared struct {
	m_log    *tools.Nixomosetools_logger
	m_lock   sync.Mutex
	m_closed bool
	/* m_rings[0] carries records from end 0 to end 1, m_rings[1] the other way. */
	m_rings   [2]fifo_ring
	m_signals [2]chan struct{}
}

type Fifo_end struct {
	m_shared *fifo_shared
	m_side   int // we write into m_rings[m_side] and read from m_rings[1-m_side]
}

func New_fifo_pair(log *tools.Nixomosetools_logger, depth int) (tools.Ret, *Fifo_end, *Fifo_end) {
	if depth < 1 {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "invalid fifo depth: ", depth), nil, nil
	}
	var shared fifo_shared
	shared.m_log = log
	shared.m_rings[0].m_records = make([]Fifo_record, depth)
	shared.m_rings[1].m_records = make([]Fifo_record, depth)
	shared.m_signals[0] = make(chan struct{}, 1)
	shared.m_signals[1] = make(chan struct{}, 1)

	var end0 Fifo_end = Fifo_end{m_shared: &shared, m_side: 0}
	var end1 Fifo_end = Fifo_end{m_shared: &shared, m_side: 1}
	return nil, &end0, &end1
}

func (this *fifo_shared) pulse(side int) {
	select {
	case this.m_signals[side] <- struct{}{}:
	default:
	}
}

/* Write pushes as many of the given records as fit into this end's outbound
   ring and reports how many it took. */
func (this *Fifo_end) Write(records []Fifo_record) (int, tools.Ret) {
	var shared *fifo_shared = this.m_shared
	shared.m_lock.Lock()
	if shared.m_closed {
		shared.m_lock.Unlock()
		return 0, tools.ErrorWithCode(shared.m_log, -int(syscall.EPIPE), "write on closed fifo")
	}
	var accepted int = 0
	for _, record := range records {
		if shared.m_rings[this.m_side].push(record) == false {
			break
		}
		accepted++
	}
	shared.m_lock.Unlock()

	if accepted > 0 {
		// the peer has something to read now
		shared.pulse(1 - this.m_side)
	}
	return accepted, nil
}

/* Read pops one record from this end's inbound ring, false meaning there is
   nothing there right now. */
func (this *Fifo_end) Read() (Fifo_record, bool, tools.Ret) {
	var record Fifo_record
	var shared *fifo_shared = this.m_shared
	shared.m_lock.Lock()
	if shared.m_closed {
		shared.m_lock.Unlock()
		return record, false, tools.ErrorWithCode(shared.m_log, -int(syscall.EPIPE), "read on closed fifo")
	}
	var ok bool
	record, ok = shared.m_rings[1-this.m_side].pop()
	shared.m_lock.Unlock()

	if ok {
		// the peer has space to write into now
		shared.pulse(1 - this.m_side)
	}
	return record, ok, nil
}

/* Signal's channel gets a pulse whenever this end may be able to read or
   write again, and when the fifo is closed. park on it after a would-block. */
func (this *Fifo_end) Signal() <-chan struct{} {
	return this.m_shared.m_signals[this.m_side]
}

func (this *Fifo_end) Get_depth() int {
	return len(this.m_shared.m_rings[0].m_records)
}

/* Close kills the whole fifo, both directions, both ends, forever. records
   still sitting in the rings are abandoned, the same way they would be if the
   process on the other side went away. */
func (this *Fifo_end) Close() {
	var shared *fifo_shared = this.m_shared
	shared.m_lock.Lock()
	if shared.m_closed {
		shared.m_lock.Unlock()
		return
	}
	shared.m_closed = true
	shared.m_lock.Unlock()

	shared.pulse(0)
	shared.pulse(1)
}

func (this *Fifo_end) Is_closed() bool {
	var shared *fifo_shared = this.m_shared
	shared.m_lock.Lock()
	var closed bool = shared.m_closed
	shared.m_lock.Unlock()
	return closed
}
