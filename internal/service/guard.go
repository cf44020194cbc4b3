package service

import (
	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/port"
)

// stamp identifies one request for a resource: the session it was issued
// in and its position among requests for the same resource.
type stamp struct {
	epoch uint64
	gen   uint64
}

// generation hands out stamps for one resource. It is not safe for
// concurrent use; the owning component guards it with its own mutex.
type generation struct {
	last uint64
}

func (g *generation) next(epoch uint64) stamp {
	g.last++
	return stamp{epoch: epoch, gen: g.last}
}

// current reports whether a response for s may still be applied: no newer
// request for the resource was issued and the session has not changed.
func (g *generation) current(s stamp, guard port.SessionGuard) bool {
	return s.gen == g.last && s.epoch == guard.Epoch()
}

// sessionEpoch returns the epoch of the authenticated session, or an
// ErrUnauthenticated naming op. The epoch is read first, so a logout racing
// with this call leaves the caller holding a stale epoch.
func sessionEpoch(guard port.SessionGuard, op string) (uint64, error) {
	epoch := guard.Epoch()
	if !guard.Authenticated() {
		return 0, &domain.ErrUnauthenticated{Operation: op}
	}
	return epoch, nil
}

// dropIfRejected ends the session when the backend no longer accepts it.
func dropIfRejected(guard port.SessionGuard, epoch uint64, err error) {
	if domain.IsSessionInvalid(err) {
		guard.Invalidate(epoch)
	}
}
