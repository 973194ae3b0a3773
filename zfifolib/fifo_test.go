// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifolib

import (
	"testing"
	"time"

	"github.com/nixomose/nixomosegotools/tools"
)

func make_record(tag byte) Fifo_record {
	var record Fifo_record
	for lp := range record {
		record[lp] = tag
	}
	return record
}

func TestFifoWouldBlockOnFull(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var ret, end0, end1 = New_fifo_pair(log, 2)
	if ret != nil {
		t.Fatalf("unable to make fifo pair: %s", ret.Get_errmsg())
	}

	var records = []Fifo_record{make_record(1), make_record(2), make_record(3)}
	var accepted, wret = end0.Write(records)
	if wret != nil {
		t.Fatalf("write failed: %s", wret.Get_errmsg())
	}
	if accepted != 2 {
		t.Fatalf("fifo of depth 2 accepted %d records, expected 2", accepted)
	}

	// the fifo is full now, another write should take nothing and not fail
	accepted, wret = end0.Write(records[2:])
	if wret != nil {
		t.Fatalf("write to full fifo failed: %s", wret.Get_errmsg())
	}
	if accepted != 0 {
		t.Fatalf("write to full fifo accepted %d records, expected 0", accepted)
	}

	// drain from the other end, in order
	for lp := 0; lp < 2; lp++ {
		var record, ok, rret = end1.Read()
		if rret != nil {
			t.Fatalf("read failed: %s", rret.Get_errmsg())
		}
		if ok == false {
			t.Fatalf("read %d found nothing in a fifo holding 2 records", lp)
		}
		if record[0] != byte(lp+1) {
			t.Fatalf("read %d got record tagged %d, fifo is not fifo", lp, record[0])
		}
	}

	// and now it's empty, which is would-block not an error
	var _, ok, rret = end1.Read()
	if rret != nil {
		t.Fatalf("read of empty fifo failed: %s", rret.Get_errmsg())
	}
	if ok {
		t.Fatal("read of empty fifo claims it found a record")
	}
}

func TestFifoDuplex(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var ret, end0, end1 = New_fifo_pair(log, 4)
	if ret != nil {
		t.Fatalf("unable to make fifo pair: %s", ret.Get_errmsg())
	}

	// each direction is its own ring, traffic one way doesn't appear the other way
	end0.Write([]Fifo_record{make_record(0xaa)})
	end1.Write([]Fifo_record{make_record(0xbb)})

	var record, ok, _ = end0.Read()
	if ok == false || record[0] != 0xbb {
		t.Fatal("end 0 did not read what end 1 wrote")
	}
	record, ok, _ = end1.Read()
	if ok == false || record[0] != 0xaa {
		t.Fatal("end 1 did not read what end 0 wrote")
	}
}

func TestFifoSignalOnWrite(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var ret, end0, end1 = New_fifo_pair(log, 4)
	if ret != nil {
		t.Fatalf("unable to make fifo pair: %s", ret.Get_errmsg())
	}

	end0.Write([]Fifo_record{make_record(1)})

	select {
	case <-end1.Signal():
	case <-time.After(2 * time.Second):
		t.Fatal("a write did not pulse the reader's signal channel")
	}
}

func TestFifoCloseIsFatalForBothEnds(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var ret, end0, end1 = New_fifo_pair(log, 4)
	if ret != nil {
		t.Fatalf("unable to make fifo pair: %s", ret.Get_errmsg())
	}

	end0.Close()

	var _, wret = end1.Write([]Fifo_record{make_record(1)})
	if wret == nil {
		t.Fatal("write on a closed fifo did not fail")
	}
	var _, _, rret = end1.Read()
	if rret == nil {
		t.Fatal("read on a closed fifo did not fail")
	}
	var _, _, rret0 = end0.Read()
	if rret0 == nil {
		t.Fatal("read on the closing end of a closed fifo did not fail")
	}

	// both ends get a pulse so parked pollers wake up and find out
	select {
	case <-end1.Signal():
	case <-time.After(2 * time.Second):
		t.Fatal("close did not pulse the peer's signal channel")
	}

	// closing again is harmless
	end1.Close()
	if end0.Is_closed() == false {
		t.Fatal("fifo does not report closed after close")
	}
}
