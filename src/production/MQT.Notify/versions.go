package notify

import (
	"sync"

	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

// versionGate keeps per-device publishing in commit order. Two writers can
// commit v1 then v2 but reach a publisher as v2 then v1; the late v1 must
// not overwrite v2 downstream. The zero value is ready to use.
type versionGate struct {
	mu   sync.Mutex
	last map[string]int64
}

// send runs fn under the gate if change is newer than every change already
// sent for its device. It reports whether fn ran.
func (g *versionGate) send(change mqtmodels.StateChange, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[change.DeviceID]; ok && change.Version <= last {
		return false
	}
	if g.last == nil {
		g.last = make(map[string]int64)
	}
	g.last[change.DeviceID] = change.Version
	fn()
	return true
}
