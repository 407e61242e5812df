// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package printer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// TCPDispatcher transmits rendered jobs to the printer over raw TCP
// (port 9100 convention). The device protocol cannot interleave writes
// from concurrent jobs, so dispatch is serialized by a mutex —
// admission runs in parallel, transmission does not.
type TCPDispatcher struct {
	mu   sync.Mutex
	addr string

	dialTimeout  time.Duration
	writeTimeout time.Duration
}

// NewTCPDispatcher creates a dispatcher for the printer at host:port.
func NewTCPDispatcher(host string, port int) *TCPDispatcher {
	return &TCPDispatcher{
		addr:         fmt.Sprintf("%s:%d", host, port),
		dialTimeout:  5 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

// Dispatch renders the job and writes it to the device. The connection
// is opened per job; thermal printers drop idle connections anyway.
func (d *TCPDispatcher) Dispatch(ctx context.Context, job *Job) error {
	payload := Render(job)

	d.mu.Lock()
	defer d.mu.Unlock()

	dialer := net.Dialer{Timeout: d.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return fmt.Errorf("connect printer %s: %w", d.addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(d.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write to printer: %w", err)
	}

	slog.Info("job dispatched to printer",
		"job_id", job.ID,
		"bytes", len(payload),
		"printer", d.addr,
	)

	return nil
}
