package dedupe

import (
	"context"
	"fmt"
)

type Stats struct {
	ActiveLessons       int64 `json:"active_lessons"`
	ArchivedLessons     int64 `json:"archived_lessons"`
	UnresolvableLessons int64 `json:"unresolvable_lessons"`
	PendingSubmissions  int64 `json:"pending_submissions"`
	EmbeddedLessons     int64 `json:"embedded_lessons"`
	EvidenceRows        int64 `json:"evidence_rows"`
	ResolvedGroups      int64 `json:"resolved_groups"`
	DismissedGroups     int64 `json:"dismissed_groups"`
}

// CollectStats aggregates catalog counters for the stats endpoint.
func (s *Service) CollectStats(ctx context.Context) (Stats, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM catalog.lessons WHERE status = 'active'),
	(SELECT COUNT(*) FROM catalog.lessons WHERE status = 'archived'),
	(SELECT COUNT(*) FROM catalog.lessons WHERE status = 'active' AND unresolvable),
	(SELECT COUNT(*) FROM catalog.submissions WHERE status = 'submitted'),
	(SELECT COUNT(DISTINCT lesson_id) FROM catalog.lesson_embeddings WHERE model_name = $1 AND model_version = $2),
	(SELECT COUNT(*) FROM catalog.similarity_evidence),
	(SELECT COUNT(*) FROM catalog.group_resolutions WHERE outcome = 'resolved'),
	(SELECT COUNT(*) FROM catalog.group_resolutions WHERE outcome = 'dismissed')
`
	var stats Stats
	row := s.pool.QueryRow(ctx, q, s.modelName, s.modelVersion)
	if err := row.Scan(
		&stats.ActiveLessons,
		&stats.ArchivedLessons,
		&stats.UnresolvableLessons,
		&stats.PendingSubmissions,
		&stats.EmbeddedLessons,
		&stats.EvidenceRows,
		&stats.ResolvedGroups,
		&stats.DismissedGroups,
	); err != nil {
		return Stats{}, fmt.Errorf("collect catalog stats: %w", err)
	}
	return stats, nil
}
