// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package hw

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"
)

const (
	chunkShift = 20
	chunkSize  = 1 << chunkShift
)

// Devmem is a Bus over /dev/mem. Windows are mapped on first touch, one
// megabyte at a time, and stay mapped until Close.
type Devmem struct {
	mutex  sync.Mutex
	f      *os.File
	chunks map[uint64][]byte
}

func OpenDevmem(name string) (*Devmem, error) {
	if len(name) == 0 {
		name = "/dev/mem"
	}
	f, err := os.OpenFile(name, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	return &Devmem{f: f, chunks: make(map[uint64][]byte)}, nil
}

func (m *Devmem) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for k, b := range m.chunks {
		syscall.Munmap(b)
		delete(m.chunks, k)
	}
	return m.f.Close()
}

func (m *Devmem) word(addr uint64) *uint32 {
	if addr&3 != 0 {
		panic(fmt.Errorf("devmem: unaligned access 0x%x", addr))
	}
	base := addr &^ (chunkSize - 1)
	m.mutex.Lock()
	b, found := m.chunks[base]
	if !found {
		var err error
		b, err = syscall.Mmap(int(m.f.Fd()), int64(base), chunkSize,
			syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
		if err != nil {
			m.mutex.Unlock()
			panic(fmt.Errorf("devmem: mmap 0x%x: %v", base, err))
		}
		m.chunks[base] = b
	}
	m.mutex.Unlock()
	return (*uint32)(unsafe.Pointer(&b[addr-base]))
}

func (m *Devmem) Read32(addr uint64) uint32 {
	return atomic.LoadUint32(m.word(addr))
}

func (m *Devmem) Write32(addr uint64, v uint32) {
	atomic.StoreUint32(m.word(addr), v)
}
