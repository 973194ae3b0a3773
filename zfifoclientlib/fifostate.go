// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* This module is the shared mutable heart of the client: the table of
in-flight requests, the queue of records that haven't made it onto the fifo
yet, and the request id counter that ties a response back to the caller
waiting for it.

One lock guards all of it, and the rule is the lock is only ever held for O(1)
table work, never across a fifo call and never across anything that blocks.
all the actual waiting happens in Response_future on a per-request channel and
all the actual fifo traffic happens in Fifo_poller. */

package zfifoclientlib

import (
	"sync"
	"syscall"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifolib"
)

type Request_state struct {
	/* one of these exists per in-flight request id. the poller fills in
	   m_result and closes m_done when the response shows up, or Terminate
	   closes m_done with no result which the waiter reads as canceled. */
	m_result     int32
	m_result_set bool
	m_done       chan struct{}
	m_completed  bool // m_done has been closed, guards against a double close
}

type Request_table struct {
	m_next_request_id uint32 // wraps at 2^32, see the collision note in Send
	m_queue           []zfifolib.Block_fifo_request
	m_requests        map[uint32]*Request_state
	m_terminated      bool
}

type Fifo_state struct {
	m_log         *tools.Nixomosetools_logger
	m_fifo        *zfifolib.Fifo_end
	m_lock        sync.Mutex
	m_table       Request_table
	m_poller_wake chan struct{}
}

func New_fifo_state(log *tools.Nixomosetools_logger, fifo *zfifolib.Fifo_end) *Fifo_state {
	var f Fifo_state
	f.m_log = log
	f.m_fifo = fifo
	f.m_table.m_requests = make(map[uint32]*Request_state)
	f.m_poller_wake = make(chan struct{}, 1)
	return &f
}

/* Send allocates a request id, stamps it into the request, queues the record
   for the poller and hands back the future the caller waits on. it never
   blocks, the fifo being full is the poller's problem not ours.

   if the fifo already terminated you still get a future back, one that
   resolves canceled immediately, so callers don't need a special path for
   racing against teardown. */
func (this *Fifo_state) Send(request *zfifolib.Block_fifo_request) (tools.Ret, *Response_future) {
	this.m_lock.Lock()
	if this.m_table.m_terminated {
		this.m_lock.Unlock()
		return nil, &Response_future{m_state: this, m_canceled: true}
	}

	var id uint32 = this.m_table.m_next_request_id
	this.m_table.m_next_request_id++ // uint32, wraps on its own

	/* the id we wrapped around to could in theory still belong to a request
	   from 4 billion sends ago that never resolved. nobody has that many
	   requests in flight, so we just detect it and report it rather than
	   trying to be clever about reassignment. */
	var _, collision = this.m_table.m_requests[id]
	if collision {
		this.m_lock.Unlock()
		return tools.ErrorWithCode(this.m_log, -int(syscall.EEXIST),
			"request id ", id, " wrapped around onto a request that is still in flight"), nil
	}

	request.Request_id = id
	var state *Request_state = &Request_state{m_done: make(chan struct{})}
	this.m_table.m_requests[id] = state
	this.m_table.m_queue = append(this.m_table.m_queue, *request)
	this.m_lock.Unlock()

	this.wake_poller()
	return nil, &Response_future{m_state: this, m_request_id: id}
}

func (this *Fifo_state) wake_poller() {
	select {
	case this.m_poller_wake <- struct{}{}:
	default:
	}
}

/* Terminate is the one way traffic light: once the fifo has failed every
   outstanding waiter gets woken up with no result (which reads as canceled)
   and every future Send resolves canceled too. calling it twice is fine, the
   second call does nothing. */
func (this *Fifo_state) Terminate() {
	this.m_lock.Lock()
	if this.m_table.m_terminated {
		this.m_lock.Unlock()
		return
	}
	this.m_table.m_terminated = true
	for _, state := range this.m_table.m_requests {
		if state.m_completed == false {
			state.m_completed = true
			close(state.m_done)
		}
	}
	this.m_table.m_queue = nil // nothing queued is ever going to be sent now
	this.m_lock.Unlock()

	this.wake_poller()
}

func (this *Fifo_state) Is_terminated() bool {
	this.m_lock.Lock()
	var terminated bool = this.m_table.m_terminated
	this.m_lock.Unlock()
	return terminated
}

/*****************************************************************************************************/
/*                  table accessors for the poller, lock discipline lives here                       */
/*****************************************************************************************************/

/* pending_requests copies out everything queued and not yet written to the
   fifo. the poller works on the copy with the lock released. */
func (this *Fifo_state) pending_requests() []zfifolib.Block_fifo_request {
	this.m_lock.Lock()
	if len(this.m_table.m_queue) == 0 {
		this.m_lock.Unlock()
		return nil
	}
	var pending []zfifolib.Block_fifo_request = make([]zfifolib.Block_fifo_request, len(this.m_table.m_queue))
	copy(pending, this.m_table.m_queue)
	this.m_lock.Unlock()
	return pending
}

/* drop_sent removes the front count records from the queue, the ones the fifo
   actually accepted. Send only ever appends and only the poller removes, so
   the front of the queue is still exactly what pending_requests returned. */
func (this *Fifo_state) drop_sent(count int) {
	this.m_lock.Lock()
	if count > len(this.m_table.m_queue) {
		count = len(this.m_table.m_queue) // terminate nil'd the queue under us
	}
	this.m_table.m_queue = this.m_table.m_queue[count:]
	this.m_lock.Unlock()
}

/* complete_request records the device's answer and wakes the waiter. a
   response for an id we no longer know about is the expected aftermath of a
   caller releasing its future before the device got around to answering, so
   it gets dropped without complaint. */
func (this *Fifo_state) complete_request(response *zfifolib.Block_fifo_response) {
	this.m_lock.Lock()
	var state, found = this.m_table.m_requests[response.Request_id]
	if found == false {
		this.m_lock.Unlock()
		this.m_log.Debug("dropping response for request id ", response.Request_id, " that nobody is waiting for")
		return
	}
	state.m_result = response.Status
	state.m_result_set = true
	if state.m_completed == false {
		state.m_completed = true
		close(state.m_done)
	}
	this.m_lock.Unlock()
}
