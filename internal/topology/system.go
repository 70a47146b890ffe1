// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

type infoFn func(ctx context.Context) ([]cpu.InfoStat, error)

// systemProvider enumerates CPUs through gopsutil, which honors HOST_PROC
// and also works where the procfs parser does not
type systemProvider struct {
	info    infoFn
	timeout time.Duration
}

var _ Provider = (*systemProvider)(nil)

func NewSystemProvider() *systemProvider {
	return &systemProvider{info: cpu.InfoWithContext, timeout: 5 * time.Second}
}

func (s *systemProvider) CPUs() ([]CPU, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	infos, err := s.info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu info: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no processors reported")
	}

	procs := make([]processor, 0, len(infos))
	for _, info := range infos {
		procs = append(procs, processor{
			index:      int(info.CPU),
			physicalID: info.PhysicalID,
			vendorID:   info.VendorID,
			family:     info.Family,
		})
	}
	return groupPackages(procs)
}
