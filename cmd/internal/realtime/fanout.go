package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"ripple/cmd/internal/directory"
	"ripple/cmd/internal/events"
	"ripple/cmd/internal/ids"
	v1 "ripple/shared/contracts/realtime/v1"
)

// PresenceFanout bridges presence edge events onto the wire: every time a
// principal flips online/offline, the members of their conversations get a
// presence_change envelope.
type PresenceFanout struct {
	log    *slog.Logger
	bus    *events.Bus
	dir    directory.Directory
	scopes *ScopeTable
}

// NewPresenceFanout constructs the bridge.
func NewPresenceFanout(log *slog.Logger, bus *events.Bus, dir directory.Directory, scopes *ScopeTable) *PresenceFanout {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceFanout{log: log, bus: bus, dir: dir, scopes: scopes}
}

// Run consumes presence events until ctx is cancelled.
func (f *PresenceFanout) Run(ctx context.Context) {
	sub := f.bus.Subscribe(events.CategoryPresence, 64)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C:
			pc, ok := ev.Payload.(events.PresenceChange)
			if !ok {
				continue
			}
			f.broadcast(ctx, pc, ev.At)
		}
	}
}

func (f *PresenceFanout) broadcast(ctx context.Context, pc events.PresenceChange, at time.Time) {
	convs, err := f.dir.PrincipalConversations(ctx, pc.PrincipalID)
	if err != nil {
		f.log.Warn("presence.fanout.lookup_fail", "principal_id", pc.PrincipalID, "err", err)
		return
	}
	if len(convs) == 0 {
		return
	}

	payload, err := json.Marshal(v1.PresenceChangePayload{
		PrincipalID: pc.PrincipalID,
		Online:      pc.Online,
		LastSeen:    pc.LastSeen,
	})
	if err != nil {
		return
	}
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypePresenceChange,
		ID:      ids.MustULID(at),
		TS:      at,
		Payload: payload,
	}

	// The principal's own sessions already know their state.
	for _, convID := range convs {
		f.scopes.Broadcast(convID, env, pc.PrincipalID)
	}
}
