// SPDX-License-Identifier: LGPL-2.1
// Copyright (C) 2021-2022 stu mark

package zfifoclientlib

/* A Vmoid is the client side token for a memory buffer registration the
   device is still holding. it is deliberately annoying to get rid of: you
   either hand it to Detach_vmo which sends the close request and consumes it,
   or you call Take_id yourself because you know the fifo is being torn down
   and the device side contract says every registration dies with it.

   just letting one fall on the floor with a live id in it means we leaked a
   registration on the device, which is a bug in the caller, so we arrange for
   that to blow up loudly instead of silently. go doesn't have destructors so
   the best available stand-in is a finalizer that panics when the collector
   finds an abandoned vmoid that still holds a real id. */

import (
	"fmt"
	"runtime"
)

const VMOID_INVALID uint16 = 0

type Vmoid struct {
	m_id uint16
}

func New_vmoid(id uint16) *Vmoid {
	var v Vmoid
	v.m_id = id
	if id != VMOID_INVALID {
		runtime.SetFinalizer(&v, vmoid_leak_check)
	}
	return &v
}

func vmoid_leak_check(leaked *Vmoid) {
	if leaked.m_id != VMOID_INVALID {
		panic(fmt.Sprint("vmoid ", leaked.m_id, " was discarded while still holding a live registration, ",
			"call Detach_vmo or Take_id before letting go of it"))
	}
}

func (this *Vmoid) Is_valid() bool {
	return this.m_id != VMOID_INVALID
}

/* Get_id copies the id out for stamping into a read or write request, the
   vmoid stays live and still has to be released eventually. */
func (this *Vmoid) Get_id() uint16 {
	return this.m_id
}

/* Take_id consumes the vmoid, it hands you the id and disarms the leak
   check. after this the vmoid is inert. */
func (this *Vmoid) Take_id() uint16 {
	var id uint16 = this.m_id
	this.m_id = VMOID_INVALID
	runtime.SetFinalizer(this, nil)
	return id
}
