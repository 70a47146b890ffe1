// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// DefaultMSRDevicePath is the msr driver device path template
const DefaultMSRDevicePath = "/dev/cpu/%d/msr"

// RegisterChannel reads model specific registers of one logical core
type RegisterChannel interface {
	// Available reports whether the registers of the core can be read at all
	Available() bool

	// Read returns the 64-bit value of the register
	Read(reg uint32) (uint64, error)

	// Close releases the channel
	Close() error
}

// ChannelOpener returns the RegisterChannel of a logical core. It never
// fails; a channel that could not be opened reports Available() == false.
type ChannelOpener func(core int) RegisterChannel

// msrChannel implements RegisterChannel over the Linux msr driver
type msrChannel struct {
	core    int
	path    string
	file    afero.File
	openErr error
	mu      sync.Mutex
}

var _ RegisterChannel = (*msrChannel)(nil)

// NewMSROpener returns a ChannelOpener for msr device files found at
// devicePath (e.g. "/dev/cpu/%d/msr") on fs
func NewMSROpener(fs afero.Fs, devicePath string) ChannelOpener {
	if devicePath == "" {
		devicePath = DefaultMSRDevicePath
	}
	return func(core int) RegisterChannel {
		path := fmt.Sprintf(devicePath, core)
		file, err := fs.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			if os.IsPermission(err) {
				err = fmt.Errorf("failed to open MSR file %s: permission denied: %w", path, err)
			} else {
				err = fmt.Errorf("failed to open MSR file %s: %w", path, err)
			}
			return &msrChannel{core: core, path: path, openErr: err}
		}
		return &msrChannel{core: core, path: path, file: file}
	}
}

func (m *msrChannel) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file != nil
}

// Read reads the 8 byte register at offset reg
func (m *msrChannel) Read(reg uint32) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		if m.openErr != nil {
			return 0, m.openErr
		}
		return 0, fmt.Errorf("MSR file %s is closed", m.path)
	}

	buf := make([]byte, 8)
	n, err := m.file.ReadAt(buf, int64(reg))
	if err != nil {
		// the msr driver returns EIO for registers the core does not implement
		if errors.Is(err, unix.EIO) {
			return 0, fmt.Errorf("MSR 0x%x not present on core %d: %w", reg, m.core, err)
		}
		return 0, fmt.Errorf("failed to read MSR 0x%x from core %d: %w", reg, m.core, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short read of MSR 0x%x from core %d: %d bytes", reg, m.core, n)
	}

	return binary.LittleEndian.Uint64(buf), nil
}

func (m *msrChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}
