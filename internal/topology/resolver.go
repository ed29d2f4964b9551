package topology

import (
	"context"
	"log/slog"

	"github.com/example/seat-scheduler/internal/config"
)

// Resolver maps a floor identifier and human seat number to the internal seat
// id. The static floor mapping is consulted first; only mapped floors ever
// reach the cache. A miss at any level yields zero — offered seats genuinely
// vary run to run, so misses are terminal rather than retried here.
type Resolver struct {
	cache   *Cache
	mapping map[string]config.FloorMapping
	log     *slog.Logger
}

func NewResolver(cache *Cache, mapping map[string]config.FloorMapping, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{cache: cache, mapping: mapping, log: log.With("component", "resolver")}
}

// SeatID resolves floorID/seatNumber to a seat id, or zero.
func (r *Resolver) SeatID(ctx context.Context, floorID, seatNumber string) int64 {
	if floorID == "" || seatNumber == "" {
		r.log.Error("floor id and seat number are required")
		return 0
	}

	fm, ok := r.mapping[floorID]
	if !ok {
		r.log.Error("no mapping for floor id", "floor_id", floorID)
		return 0
	}

	topo, err := r.cache.Get(ctx, false)
	if err != nil {
		r.log.Error("topology unavailable", "floor_id", floorID, "error", err)
		return 0
	}

	id := topo.Seat(fm.Room, fm.Floor, seatNumber)
	if id == 0 {
		r.log.Error("seat not offered",
			"floor_id", floorID, "seat_number", seatNumber, "room", fm.Room, "floor", fm.Floor)
		return 0
	}
	r.log.Info("resolved seat", "floor_id", floorID, "seat_number", seatNumber, "seat_id", id)
	return id
}
