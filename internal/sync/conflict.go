package sync

import (
	"reflect"

	"greencart-sync-api/internal/model"
)

// ConflictStrategy decides which version of a goal survives when the local
// cache and the server diverge during reconciliation.
type ConflictStrategy interface {
	// Resolve picks the winner for one goal id present on both sides. The
	// returned Conflict is nil when the two versions do not actually differ.
	Resolve(local, server model.Goal) (model.Goal, *model.Conflict)
}

// LastWriteWins resolves conflicts by UpdatedAt: the fresher copy wins,
// the server on exact ties. This mirrors the cache backends' upsert rule
// so reconciliation and storage never disagree.
type LastWriteWins struct{}

// Resolve implements ConflictStrategy.
func (LastWriteWins) Resolve(local, server model.Goal) (model.Goal, *model.Conflict) {
	if reflect.DeepEqual(local, server) {
		return server, nil
	}

	conflict := &model.Conflict{
		GoalID:     server.ID,
		LocalTime:  local.UpdatedAt,
		ServerTime: server.UpdatedAt,
	}
	if local.UpdatedAt.After(server.UpdatedAt) {
		conflict.Winner = "local"
		return local, conflict
	}
	conflict.Winner = "server"
	return server, conflict
}

// ResolveConflicts reconciles the pre-pull local snapshot against the
// server-authoritative set. The returned goals are the merged result;
// conflicts lists every divergence that was auto-resolved.
//
// Goals only the server knows stay, unless an unsynced delete still
// tombstones them: a delete that has not reached the server yet must not be
// undone by the server's copy coming back on the pull. Goals only the cache
// knows are kept when a pending local change still references them (an
// unsynced create or update that has not reached the server yet); otherwise
// the server's absence is authoritative and they drop out.
func ResolveConflicts(strategy ConflictStrategy, local, server []model.Goal, pending []model.OfflineChange) ([]model.Goal, []model.Conflict) {
	serverByID := make(map[string]model.Goal, len(server))
	for _, g := range server {
		serverByID[g.ID] = g
	}

	pendingIDs := make(map[string]bool, len(pending))
	pendingDeletes := make(map[string]bool)
	for _, ch := range pending {
		if ch.Synced || ch.GoalID == "" {
			continue
		}
		if ch.Type == model.ChangeDelete {
			pendingDeletes[ch.GoalID] = true
			continue
		}
		pendingIDs[ch.GoalID] = true
	}

	var merged []model.Goal
	var conflicts []model.Conflict
	seen := make(map[string]bool, len(server))

	for _, localGoal := range local {
		serverGoal, onServer := serverByID[localGoal.ID]
		if !onServer {
			if pendingIDs[localGoal.ID] || model.IsTempID(localGoal.ID) {
				merged = append(merged, localGoal)
			}
			continue
		}
		seen[localGoal.ID] = true

		winner, conflict := strategy.Resolve(localGoal, serverGoal)
		merged = append(merged, winner)
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}

	for _, g := range server {
		if !seen[g.ID] && !pendingDeletes[g.ID] {
			merged = append(merged, g)
		}
	}

	return merged, conflicts
}
