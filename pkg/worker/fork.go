package worker

import (
	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/oplog"
)

// Fork copies src's oplog up to and including cutoff into dst's
// (fresh) oplog, preserving entry kind and payload but reassigning
// indices sequentially (spec.md §4.2 Fork / revert). dst must not
// already have an oplog. The caller activates a new Actor against dst
// once Fork returns.
func Fork(log oplog.Appender, src, dst domain.WorkerId, cutoff domain.OplogIndex) error {
	entries, err := log.Read(src, 1)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Index > cutoff {
			break
		}
		if _, err := log.Append(dst, e.Kind, e.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Revert writes a Jump entry that elides oplog region (target,
// last_index] from future replays: subsequent reads still return those
// entries physically, but a replay loop must stop trusting them past
// the jump and treat target as the new effective tail (spec.md §4.2
// Fork / revert, and §8 boundary behavior for Jump).
func Revert(log oplog.Appender, worker domain.WorkerId, target domain.OplogIndex) error {
	_, err := log.Append(worker, domain.EntryJump, domain.JumpPayload{TargetIndex: target})
	return err
}

// EffectiveReplayEntries filters a raw entry slice according to any Jump
// entries present, so a replay loop sees exactly the entries a Revert
// left visible. Entries are assumed to be in ascending Index order.
func EffectiveReplayEntries(entries []*domain.OplogEntry) []*domain.OplogEntry {
	type elided struct{ after, before domain.OplogIndex }
	var regions []elided
	for _, e := range entries {
		if e.Kind == domain.EntryJump {
			var p domain.JumpPayload
			if err := e.Decode(&p); err == nil {
				regions = append(regions, elided{after: p.TargetIndex, before: e.Index})
			}
		}
	}
	if len(regions) == 0 {
		return entries
	}
	out := make([]*domain.OplogEntry, 0, len(entries))
	for _, e := range entries {
		visible := true
		for _, r := range regions {
			if e.Index > r.after && e.Index < r.before {
				visible = false
			}
		}
		if visible {
			out = append(out, e)
		}
	}
	return out
}
