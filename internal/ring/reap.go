// File: internal/ring/reap.go
// Author: natyamatsya
// License: Apache-2.0
//
// Dead-peer reclamation: any participant may detect a dead
// connection's PID and disconnect it on the dead's behalf, reclaiming
// slots whose outstanding mask refers only to connections nobody will
// ever read again.

package ring

import (
	"sync/atomic"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipclog"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/xpp"
)

// ReapDeadConnections probes every currently-connected slot's
// recorded PID and disconnects any that no longer refer to a live
// process. It returns the number of connections reclaimed.
func (r *Ring) ReapDeadConnections() int {
	reclaimed := 0
	for id := 0; id < MaxConnections; id++ {
		if r.connState(id) != ConnConnected {
			continue
		}
		pid := atomic.LoadInt32(r.connPIDs[id])
		if pid == 0 || xpp.PIDAlive(pid) {
			continue
		}
		r.Disconnect(id)
		reclaimed++
		ipclog.Component("ring").Debug().Int("conn_id", id).Int32("pid", pid).
			Msg("reclaimed connection held by a dead process")
	}
	return reclaimed
}
