// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifoclientlib

/* A Response_future is one caller's claim ticket for one request id. the
   contract is you end it exactly one way: Wait until it resolves, or Release
   it because you stopped caring (you lost a select race, your timeout fired,
   whatever). both of them remove the table entry, and once the entry is gone
   the poller silently drops whatever response eventually shows up for that
   id. there is no cancel message to the device, abandoning the wait is the
   whole cancellation mechanism. */

import (
	"syscall"

	"github.com/nixomose/nixomosegotools/tools"
)

type Response_future struct {
	m_state      *Fifo_state
	m_request_id uint32
	/* set for futures handed out after termination, they never had a table
	   entry and must not go near anybody else's request id. */
	m_canceled bool
}

/* a shared pre-closed channel for futures whose table entry is already gone,
   so Done always has something selectable to hand back. */
var already_resolved chan struct{} = make(chan struct{})

func init() {
	close(already_resolved)
}

/* Done is for racing this future against timers or other futures in a select.
   the channel is closed when the result is in or the fifo died. winning or
   losing the race, you still owe a Wait or a Release afterwards. */
func (this *Response_future) Done() <-chan struct{} {
	if this.m_canceled {
		return already_resolved
	}
	this.m_state.m_lock.Lock()
	var state, found = this.m_state.m_table.m_requests[this.m_request_id]
	this.m_state.m_lock.Unlock()
	if found == false {
		return already_resolved
	}
	return state.m_done
}

/* Wait blocks until the device answers or the fifo terminates.
   nil for a status of zero, the device's errno for a per-request failure,
   ECANCELED if the fifo was torn down before a result arrived (or this future
   was already released). the table entry is removed on the way out. */
func (this *Response_future) Wait() tools.Ret {
	if this.m_canceled {
		return tools.ErrorWithCode(this.m_state.m_log, -int(syscall.ECANCELED),
			"request submitted after the fifo terminated")
	}
	this.m_state.m_lock.Lock()
	var state, found = this.m_state.m_table.m_requests[this.m_request_id]
	this.m_state.m_lock.Unlock()

	if found == false {
		return tools.ErrorWithCode(this.m_state.m_log, -int(syscall.ECANCELED),
			"request ", this.m_request_id, " was canceled")
	}

	<-state.m_done

	this.m_state.m_lock.Lock()
	delete(this.m_state.m_table.m_requests, this.m_request_id)
	var result_set bool = state.m_result_set
	var result int32 = state.m_result
	this.m_state.m_lock.Unlock()

	if result_set == false {
		// woken by Terminate, not by a response
		return tools.ErrorWithCode(this.m_state.m_log, -int(syscall.ECANCELED),
			"fifo terminated before request ", this.m_request_id, " completed")
	}
	if result != 0 {
		return tools.ErrorWithCode(this.m_state.m_log, int(result),
			"device returned error ", result, " for request ", this.m_request_id)
	}
	return nil
}

/* Release forgets the request without waiting. idempotent, and safe to call
   even after the response already landed (the response just gets thrown
   away, which is what not caring means). */
func (this *Response_future) Release() {
	if this.m_canceled {
		return
	}
	this.m_state.m_lock.Lock()
	delete(this.m_state.m_table.m_requests, this.m_request_id)
	this.m_state.m_lock.Unlock()
}
