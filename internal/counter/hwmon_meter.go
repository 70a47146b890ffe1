// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sustainable-computing-io/raplmeter/internal/device"
)

var energyInputPattern = regexp.MustCompile(`^energy(\d+)_input$`)

// HwmonMeter is a WattHourMeter reading the cumulative energy sensor of a
// hwmon chip (energyN_input, in microjoules)
type HwmonMeter struct {
	basePath string // /sys/class/hwmon
	chip     string

	mu   sync.Mutex
	path string
}

var _ WattHourMeter = (*HwmonMeter)(nil)

// NewHwmonMeter returns a meter on the first energy sensor of the hwmon chip
// whose name is chip; any chip matches when chip is empty
func NewHwmonMeter(sysfsPath, chip string) *HwmonMeter {
	return &HwmonMeter{
		basePath: filepath.Join(sysfsPath, "class", "hwmon"),
		chip:     strings.TrimSpace(chip),
	}
}

// Open locates the energy sensor
func (h *HwmonMeter) Open() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := os.ReadDir(h.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("hwmon not available: %w", err)
		}
		return fmt.Errorf("failed to read hwmon directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		dir := filepath.Join(h.basePath, entry.Name())
		if h.chip != "" && chipName(dir) != h.chip {
			continue
		}
		if path, ok := firstEnergyInput(dir); ok {
			h.path = path
			return nil
		}
	}

	if h.chip != "" {
		return fmt.Errorf("no energy sensor found for hwmon chip %q", h.chip)
	}
	return fmt.Errorf("no hwmon energy sensor found")
}

func (h *HwmonMeter) WattHours() (float64, error) {
	h.mu.Lock()
	path := h.path
	h.mu.Unlock()

	if path == "" {
		return 0, fmt.Errorf("hwmon meter not open")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	uj, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return device.JoulesFromMicroJoules(uj).WattHours(), nil
}

func (h *HwmonMeter) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = ""
	return nil
}

// Path returns the sensor file found by Open
func (h *HwmonMeter) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

func chipName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// firstEnergyInput returns the energy sensor with the lowest index in dir
func firstEnergyInput(dir string) (string, bool) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	best, found := 0, ""
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := energyInputPattern.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if found == "" || n < best {
			best, found = n, f.Name()
		}
	}
	if found == "" {
		return "", false
	}
	return filepath.Join(dir, found), true
}
