// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

/* This module is the background pump for one fifo. one goroutine per open
client, looping forever: push whatever is queued onto the fifo, pull whatever
responses are sitting there and hand them to the request table, then park
until somebody queues more work or the fifo signals it can move again.

the only way out of the loop is the fifo dying, and that is a one way door:
we mark the table terminated (which resolves every outstanding and future
request as canceled) and the goroutine ends. no retries here, if a caller
wants retry policy they build it on top of the block device calls. */

package zfifoclientlib

import (
	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifolib"
)

type Fifo_poller struct {
	m_log   *tools.Nixomosetools_logger
	m_state *Fifo_state
}

func New_fifo_poller(log *tools.Nixomosetools_logger, state *Fifo_state) Fifo_poller {
	var p Fifo_poller
	p.m_log = log
	p.m_state = state
	return p
}

func (this *Fifo_poller) Run() {
	for {
		if this.pump_sends() == false {
			return
		}
		if this.pump_receives() == false {
			return
		}
		if this.m_state.Is_terminated() {
			// somebody terminated us from outside, like a client Close
			return
		}
		select {
		case <-this.m_state.m_poller_wake:
		case <-this.m_state.m_fifo.Signal():
		}
	}
}

/* pump_sends writes as much of the queue as the fifo will take right now.
   false means the fifo is dead and the table has been terminated. */
func (this *Fifo_poller) pump_sends() bool {
	for {
		var pending []zfifolib.Block_fifo_request = this.m_state.pending_requests()
		if len(pending) == 0 {
			return true
		}

		var records []zfifolib.Fifo_record = make([]zfifolib.Fifo_record, 0, len(pending))
		for lp := 0; lp < len(pending); lp++ {
			var ret, record = zfifolib.Encode_request(this.m_log, &pending[lp])
			if ret != nil {
				/* a record that won't serialize is a code bug not a device
				   condition, and we can't send anything after it without
				   reordering, so the fifo is done for. */
				this.m_log.Error("unable to encode queued request, terminating fifo, error: ", ret.Get_errmsg())
				this.m_state.Terminate()
				return false
			}
			records = append(records, record)
		}

		var accepted, ret = this.m_state.m_fifo.Write(records)
		if ret != nil {
			this.m_state.Terminate()
			return false
		}
		if accepted == 0 {
			return true // fifo is full, wait for the signal
		}
		this.m_state.drop_sent(accepted)
		if accepted < len(records) {
			return true
		}
	}
}

/* pump_receives drains every response the fifo has ready and resolves the
   matching waiters. false means the fifo is dead and the table has been
   terminated. */
func (this *Fifo_poller) pump_receives() bool {
	for {
		var record, ok, ret = this.m_state.m_fifo.Read()
		if ret != nil {
			this.m_state.Terminate()
			return false
		}
		if ok == false {
			return true
		}

		var ret2, response = zfifolib.Decode_response(this.m_log, record)
		if ret2 != nil {
			// a 32 byte record that won't decode shouldn't be possible, log it and move on
			this.m_log.Error("dropping undecodable fifo response record, error: ", ret2.Get_errmsg())
			continue
		}
		this.m_state.complete_request(response)
	}
}
