// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package storage

import (
	"bytes"
	"testing"

	"github.com/nixomose/nixomosegotools/tools"
)

func TestRamdiskUnwrittenBlocksReadZero(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var store = New_ramdiskstorage(log, 512)

	var data []byte = make([]byte, 512*4)
	for lp := range data {
		data[lp] = 0xff // so we can tell a real zero fill from an untouched buffer
	}
	var ret = store.Read_block(512*10, 512*4, data)
	if ret != nil {
		t.Fatalf("read failed: %s", ret.Get_errmsg())
	}
	for lp := range data {
		if data[lp] != 0 {
			t.Fatal("an unwritten block did not read back as zeroes")
		}
	}
}

func TestRamdiskRoundTrip(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var store = New_ramdiskstorage(log, 512)

	var pattern []byte = make([]byte, 512*3)
	for lp := range pattern {
		pattern[lp] = byte(lp % 255)
	}
	var ret = store.Write_block(512*5, 512*3, pattern)
	if ret != nil {
		t.Fatalf("write failed: %s", ret.Get_errmsg())
	}

	var readback []byte = make([]byte, 512*3)
	ret = store.Read_block(512*5, 512*3, readback)
	if ret != nil {
		t.Fatalf("read failed: %s", ret.Get_errmsg())
	}
	if bytes.Equal(pattern, readback) == false {
		t.Fatal("readback does not match what was written")
	}

	// the blocks either side of the write are still untouched
	var edge []byte = make([]byte, 512)
	ret = store.Read_block(512*4, 512, edge)
	if ret != nil {
		t.Fatalf("read failed: %s", ret.Get_errmsg())
	}
	for lp := range edge {
		if edge[lp] != 0 {
			t.Fatal("the block before the write is not zero anymore")
		}
	}
	ret = store.Read_block(512*8, 512, edge)
	if ret != nil {
		t.Fatalf("read failed: %s", ret.Get_errmsg())
	}
	for lp := range edge {
		if edge[lp] != 0 {
			t.Fatal("the block after the write is not zero anymore")
		}
	}
}

func TestRamdiskDiscardRezeroes(t *testing.T) {
	var log = tools.New_Nixomosetools_logger(tools.DEBUG)
	var store = New_ramdiskstorage(log, 512)

	var pattern []byte = make([]byte, 512*2)
	for lp := range pattern {
		pattern[lp] = 0xa5
	}
	var ret = store.Write_block(0, 512*2, pattern)
	if ret != nil {
		t.Fatalf("write failed: %s", ret.Get_errmsg())
	}
	ret = store.Discard_block(0, 512)
	if ret != nil {
		t.Fatalf("discard failed: %s", ret.Get_errmsg())
	}

	var readback []byte = make([]byte, 512*2)
	ret = store.Read_block(0, 512*2, readback)
	if ret != nil {
		t.Fatalf("read failed: %s", ret.Get_errmsg())
	}
	for lp := 0; lp < 512; lp++ {
		if readback[lp] != 0 {
			t.Fatal("a discarded block did not read back as zeroes")
		}
	}
	for lp := 512; lp < 512*2; lp++ {
		if readback[lp] != 0xa5 {
			t.Fatal("discard took out a block it was not asked to")
		}
	}
}
