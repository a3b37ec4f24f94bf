package memory

import (
	"context"

	"unified-thinking/internal/audit"
	"unified-thinking/internal/errors"
	"unified-thinking/internal/types"
)

// DeleteEpisode removes an episode from storage and the spatiotemporal
// index. Grounded on the teacher's delete-then-deindex ordering for mutable
// entities (internal/storage's DeleteEpisode is the durability boundary;
// the index entry is best-effort cleanup since Query tolerates stale ids
// that GetEpisode can no longer resolve).
func (s *Store) DeleteEpisode(ctx context.Context, id string) error {
	ep, err := s.storage.GetEpisode(id)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteEpisode(id); err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	s.index.Remove(id)
	s.invalidateCache(ep.Context.Domain, ep.Kind)
	s.auditSink.Log(ctx, audit.Event{Type: "episode.delete", Subject: id})
	return nil
}

// EpisodeUpdate carries the mutable subset of an open episode's fields that
// update_episode may change. Nil fields are left untouched.
type EpisodeUpdate struct {
	TaskDescription *string
	Context         *types.TaskContext
}

// UpdateEpisode patches an open episode's description/context in place.
// Subject to the same completion-freeze invariant as LogStep: a completed
// episode's record is immutable.
func (s *Store) UpdateEpisode(ctx context.Context, id string, upd EpisodeUpdate) (*types.Episode, error) {
	ep, err := s.storage.GetEpisode(id)
	if err != nil {
		return nil, err
	}

	shard := s.shardLock(ep.Context.Domain, ep.Kind)
	shard.Lock()
	defer shard.Unlock()

	ep, err = s.storage.GetEpisode(id)
	if err != nil {
		return nil, err
	}
	if ep.IsComplete() {
		return nil, errors.NewStructuredError(errors.ErrEpisodeCompleted, "episode "+id+" is already complete")
	}

	oldDomain, oldKind := ep.Context.Domain, ep.Kind
	if upd.TaskDescription != nil {
		ep.TaskDescription = *upd.TaskDescription
	}
	if upd.Context != nil {
		ep.Context = *upd.Context
	}

	if err := s.storage.PutEpisode(ep); err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	s.invalidateCache(oldDomain, oldKind)
	s.invalidateCache(ep.Context.Domain, ep.Kind)
	s.auditSink.Log(ctx, audit.Event{Type: "episode.update", Subject: id})
	return ep, nil
}

// GetEpisodeTimeline returns an episode's ordered steps; the step slice is
// already chronological, so the timeline view is the episode itself.
func (s *Store) GetEpisodeTimeline(id string) (*types.Episode, error) {
	return s.storage.GetEpisode(id)
}

// BulkEpisodes resolves a set of episode ids, reporting which were found.
func (s *Store) BulkEpisodes(ids []string) (found []*types.Episode, missing []string) {
	for _, id := range ids {
		ep, err := s.storage.GetEpisode(id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		found = append(found, ep)
	}
	return found, missing
}
