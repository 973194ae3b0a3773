// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package storage

/* A storage mechanism that keeps the blocks in a file opened O_DIRECT, so the
   exerciser can hammer a real disk without the page cache telling comfortable
   lies about how fast we are.

   O_DIRECT wants every transfer aligned: the file offset, the length and the
   memory buffer itself, all to the filesystem's block size. our device block
   size can be smaller than that, so every call stages through an aligned
   buffer covering the aligned span around the requested range, and unaligned
   writes are read-modify-write on that span. */

import (
	"os"
	"syscall"

	"github.com/ncw/directio"
	"github.com/nixomose/nixomosegotools/tools"
	"github.com/nixomose/zfifogoclient/zfifoclientlib/zfifointerfaces"
)

var _ zfifointerfaces.Storage_mechanism = &Filestorage{}
var _ zfifointerfaces.Storage_mechanism = (*Filestorage)(nil)

type Filestorage struct {
	m_log           *tools.Nixomosetools_logger
	m_block_size    uint32
	m_size_in_bytes uint64
	m_fd            *os.File
}

func New_filestorage(log *tools.Nixomosetools_logger, block_size uint32, path string,
	size_in_bytes uint64) (tools.Ret, *Filestorage) {

	if size_in_bytes%uint64(directio.AlignSize) != 0 {
		return tools.ErrorWithCode(log, -int(syscall.EINVAL), "backing file size ", size_in_bytes,
			" must be a multiple of the direct io alignment ", directio.AlignSize), nil
	}

	var fd, err = directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return tools.Error(log, "unable to open backing file ", path, " for direct io, err: ", err), nil
	}
	err = fd.Truncate(int64(size_in_bytes))
	if err != nil {
		fd.Close()
		return tools.Error(log, "unable to size backing file ", path, " to ", size_in_bytes, " bytes, err: ", err), nil
	}

	var f Filestorage
	f.m_log = log
	f.m_block_size = block_size
	f.m_size_in_bytes = size_in_bytes
	f.m_fd = fd
	return nil, &f
}

func (this *Filestorage) Get_block_size() uint32 {
	return this.m_block_size
}

func (this *Filestorage) Close() tools.Ret {
	var err = this.m_fd.Close()
	if err != nil {
		return tools.Error(this.m_log, "unable to close backing file, err: ", err)
	}
	return nil
}

/* the aligned span that covers start..start+length. */
func (this *Filestorage) aligned_span(start_in_bytes uint64, length uint32) (uint64, uint64) {
	var align uint64 = uint64(directio.AlignSize)
	var span_start uint64 = start_in_bytes - (start_in_bytes % align)
	var span_end uint64 = start_in_bytes + uint64(length)
	if span_end%align != 0 {
		span_end += align - (span_end % align)
	}
	return span_start, span_end
}

func (this *Filestorage) check_range(start_in_bytes uint64, length uint32) tools.Ret {
	if start_in_bytes+uint64(length) > this.m_size_in_bytes {
		return tools.ErrorWithCode(this.m_log, int(syscall.EINVAL), "io request for ", length, " bytes at ",
			start_in_bytes, " runs past the end of a ", this.m_size_in_bytes, " byte backing file")
	}
	return nil
}

func (this *Filestorage) read_span(span_start uint64, span_end uint64) (tools.Ret, []byte) {
	var span []byte = directio.AlignedBlock(int(span_end - span_start))
	var _, err = this.m_fd.ReadAt(span, int64(span_start))
	if err != nil {
		return tools.Error(this.m_log, "unable to read ", len(span), " bytes at ", span_start,
			" from backing file, err: ", err), nil
	}
	return nil, span
}

func (this *Filestorage) Read_block(start_in_bytes uint64, length uint32, dataout []byte) tools.Ret {
	var ret = this.check_range(start_in_bytes, length)
	if ret != nil {
		return ret
	}
	var span_start, span_end = this.aligned_span(start_in_bytes, length)
	var span []byte
	ret, span = this.read_span(span_start, span_end)
	if ret != nil {
		return ret
	}
	var copied int = copy(dataout[0:length], span[start_in_bytes-span_start:])
	if copied != int(length) {
		return tools.ErrorWithCode(this.m_log, int(syscall.ENODATA), "unable to copy data from backing file span, only copied: ", copied)
	}
	return nil
}

func (this *Filestorage) Write_block(start_in_bytes uint64, length uint32, data []byte) tools.Ret {
	var ret = this.check_range(start_in_bytes, length)
	if ret != nil {
		return ret
	}
	var span_start, span_end = this.aligned_span(start_in_bytes, length)

	var span []byte
	if span_start == start_in_bytes && span_end == start_in_bytes+uint64(length) {
		// already aligned, just copy into an aligned buffer and write it out
		span = directio.AlignedBlock(int(length))
		copy(span, data[0:length])
	} else {
		// unaligned, read the covering span, lay the new data into it, write it back
		ret, span = this.read_span(span_start, span_end)
		if ret != nil {
			return ret
		}
		copy(span[start_in_bytes-span_start:], data[0:length])
	}

	var _, err = this.m_fd.WriteAt(span, int64(span_start))
	if err != nil {
		return tools.Error(this.m_log, "unable to write ", len(span), " bytes at ", span_start,
			" to backing file, err: ", err)
	}
	return nil
}

func (this *Filestorage) Discard_block(start_in_bytes uint64, length uint32) tools.Ret {
	return tools.ErrorWithCode(this.m_log, -int(syscall.ENOTSUP), "trim not supported yet.")
}
