package dedupe

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"garden.school/lessonbank/internal/db"
	"garden.school/lessonbank/internal/globaltime"
)

// Decision values an operator may assign to a group member.
const (
	DecisionKeep         = "keep"
	DecisionArchive      = "archive"
	DecisionUnresolvable = "unresolvable"
)

type MemberDecision struct {
	LessonUUID string `json:"lesson_id"`
	Decision   string `json:"decision"`
	// ArchiveTo names the kept member the archived lesson collapses into.
	// Optional when exactly one member is kept.
	ArchiveTo string `json:"archive_to,omitempty"`
}

type ResolveRequest struct {
	Signature string
	Decisions []MemberDecision
	DecidedBy string
}

type ResolveResult struct {
	Signature         string   `json:"signature"`
	KeptUUIDs         []string `json:"kept_ids"`
	ArchivedUUIDs     []string `json:"archived_ids"`
	UnresolvableCount int      `json:"unresolvable_count"`
	BookmarksMoved    int64    `json:"bookmarks_moved"`
	CollectionsMoved  int64    `json:"collections_moved"`
}

type memberRow struct {
	LessonID     int64
	LessonUUID   string
	Title        string
	Status       string
	Unresolvable bool
	Snapshot     []byte
}

// ResolveGroup applies operator decisions to a duplicate group in one
// transaction. One or more members survive as canonical; each archived
// member gets an archive entry with a frozen snapshot pointing at its own
// canonical target, its bookmarks and collection items are rewritten to that
// target, and its status flips to archived. The group signature is claimed
// first so a concurrent second resolve of the same group fails with
// ErrGroupAlreadyDecided.
func (s *Service) ResolveGroup(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	kept, archived, unresolvable, err := splitDecisions(req.Decisions)
	if err != nil {
		return ResolveResult{}, err
	}
	if strings.TrimSpace(req.Signature) == "" {
		return ResolveResult{}, fmt.Errorf("%w: signature is required", ErrInvalidInput)
	}

	memberUUIDs := make([]string, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		memberUUIDs = append(memberUUIDs, d.LessonUUID)
	}
	if GroupSignature(memberUUIDs) != req.Signature {
		return ResolveResult{}, fmt.Errorf("%w: decisions do not cover the signed member set", ErrInvalidDecision)
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return ResolveResult{}, fmt.Errorf("begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.claimResolution(ctx, tx, req, memberUUIDs, "resolved"); err != nil {
		return ResolveResult{}, err
	}

	members, err := lockMembers(ctx, tx, memberUUIDs)
	if err != nil {
		return ResolveResult{}, err
	}
	for _, uuid := range memberUUIDs {
		member, ok := members[uuid]
		if !ok {
			return ResolveResult{}, fmt.Errorf("%w: lesson %s not found", ErrMemberNotActive, uuid)
		}
		if member.Status != "active" {
			return ResolveResult{}, fmt.Errorf("%w: lesson %s has status %s", ErrMemberNotActive, uuid, member.Status)
		}
	}

	result := ResolveResult{
		Signature:         req.Signature,
		KeptUUIDs:         kept,
		ArchivedUUIDs:     []string{},
		UnresolvableCount: len(unresolvable),
	}

	archivedUUIDs := make([]string, 0, len(archived))
	for uuid := range archived {
		archivedUUIDs = append(archivedUUIDs, uuid)
	}
	sort.Strings(archivedUUIDs)

	for _, uuid := range archivedUUIDs {
		member := members[uuid]
		target := members[archived[uuid]]
		if err := archiveMember(ctx, tx, member, target, req.Signature); err != nil {
			return ResolveResult{}, err
		}
		bookmarks, collections, err := rewriteReferences(ctx, tx, member.LessonID, target.LessonID)
		if err != nil {
			return ResolveResult{}, err
		}
		result.ArchivedUUIDs = append(result.ArchivedUUIDs, uuid)
		result.BookmarksMoved += bookmarks
		result.CollectionsMoved += collections
	}

	for _, uuid := range unresolvable {
		member := members[uuid]
		const q = `UPDATE catalog.lessons SET unresolvable = TRUE, updated_at = $2 WHERE lesson_id = $1`
		if _, err := tx.Exec(ctx, q, member.LessonID, globaltime.UTC()); err != nil {
			return ResolveResult{}, fmt.Errorf("mark lesson %s unresolvable: %w", uuid, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ResolveResult{}, fmt.Errorf("commit resolve tx: %w", err)
	}

	s.logger.Info().
		Str("signature", req.Signature).
		Strs("kept_ids", kept).
		Int("archived", len(result.ArchivedUUIDs)).
		Int("unresolvable", result.UnresolvableCount).
		Str("decided_by", req.DecidedBy).
		Msg("duplicate group resolved")

	return result, nil
}

// DismissGroup records a group as a confirmed non-duplicate set. Every
// member is marked unresolvable so pairs within the set stop regrouping, and
// the signature is claimed with outcome dismissed.
func (s *Service) DismissGroup(ctx context.Context, signature string, memberUUIDs []string, decidedBy string) error {
	if strings.TrimSpace(signature) == "" {
		return fmt.Errorf("%w: signature is required", ErrInvalidInput)
	}
	if len(memberUUIDs) < 2 {
		return fmt.Errorf("%w: a group needs at least two members", ErrInvalidInput)
	}
	if GroupSignature(memberUUIDs) != signature {
		return fmt.Errorf("%w: members do not match the signature", ErrInvalidInput)
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin dismiss tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req := ResolveRequest{Signature: signature, DecidedBy: decidedBy}
	for _, uuid := range memberUUIDs {
		req.Decisions = append(req.Decisions, MemberDecision{LessonUUID: uuid, Decision: DecisionUnresolvable})
	}
	if err := s.claimResolution(ctx, tx, req, memberUUIDs, "dismissed"); err != nil {
		return err
	}

	members, err := lockMembers(ctx, tx, memberUUIDs)
	if err != nil {
		return err
	}
	now := globaltime.UTC()
	for _, uuid := range memberUUIDs {
		member, ok := members[uuid]
		if !ok {
			return fmt.Errorf("%w: lesson %s not found", ErrMemberNotActive, uuid)
		}
		const q = `UPDATE catalog.lessons SET unresolvable = TRUE, updated_at = $2 WHERE lesson_id = $1`
		if _, err := tx.Exec(ctx, q, member.LessonID, now); err != nil {
			return fmt.Errorf("mark lesson %s unresolvable: %w", uuid, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit dismiss tx: %w", err)
	}

	s.logger.Info().
		Str("signature", signature).
		Int("members", len(memberUUIDs)).
		Str("decided_by", decidedBy).
		Msg("duplicate group dismissed")

	return nil
}

// splitDecisions validates the decision set: at least one keep, every other
// member archive or unresolvable, no duplicate members. Each archive decision
// collapses into the kept member named by its archive target; the target may
// be omitted only when a single member is kept.
func splitDecisions(decisions []MemberDecision) (kept []string, archived map[string]string, unresolvable []string, err error) {
	if len(decisions) < 2 {
		return nil, nil, nil, fmt.Errorf("%w: a group needs at least two decisions", ErrInvalidDecision)
	}

	keptSet := make(map[string]struct{})
	archived = make(map[string]string)
	seen := make(map[string]struct{}, len(decisions))
	for _, d := range decisions {
		uuid := strings.TrimSpace(d.LessonUUID)
		if uuid == "" {
			return nil, nil, nil, fmt.Errorf("%w: empty lesson id", ErrInvalidDecision)
		}
		if _, dup := seen[uuid]; dup {
			return nil, nil, nil, fmt.Errorf("%w: duplicate decision for lesson %s", ErrInvalidDecision, uuid)
		}
		seen[uuid] = struct{}{}

		target := strings.TrimSpace(d.ArchiveTo)
		if target != "" && d.Decision != DecisionArchive {
			return nil, nil, nil, fmt.Errorf("%w: archive target on %s decision for lesson %s", ErrInvalidDecision, d.Decision, uuid)
		}

		switch d.Decision {
		case DecisionKeep:
			kept = append(kept, uuid)
			keptSet[uuid] = struct{}{}
		case DecisionArchive:
			archived[uuid] = target
		case DecisionUnresolvable:
			unresolvable = append(unresolvable, uuid)
		default:
			return nil, nil, nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidDecision, d.Decision)
		}
	}
	if len(kept) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: at least one lesson must be marked keep", ErrInvalidDecision)
	}

	for uuid, target := range archived {
		if target == "" {
			if len(kept) > 1 {
				return nil, nil, nil, fmt.Errorf("%w: lesson %s needs an archive target when several lessons are kept", ErrInvalidDecision, uuid)
			}
			archived[uuid] = kept[0]
			continue
		}
		if target == uuid {
			return nil, nil, nil, fmt.Errorf("%w: lesson %s cannot be its own archive target", ErrInvalidDecision, uuid)
		}
		if _, ok := keptSet[target]; !ok {
			return nil, nil, nil, fmt.Errorf("%w: archive target %s is not a kept member", ErrInvalidDecision, target)
		}
	}

	sort.Strings(kept)
	sort.Strings(unresolvable)
	return kept, archived, unresolvable, nil
}

// claimResolution inserts the group_resolutions row inside the caller's
// transaction. The unique signature index turns a concurrent second decision
// into a conflict, reported as ErrGroupAlreadyDecided.
func (s *Service) claimResolution(ctx context.Context, tx db.Tx, req ResolveRequest, memberUUIDs []string, outcome string) error {
	memberJSON, err := json.Marshal(memberUUIDs)
	if err != nil {
		return fmt.Errorf("marshal member uuids: %w", err)
	}
	decisionJSON, err := json.Marshal(req.Decisions)
	if err != nil {
		return fmt.Errorf("marshal decisions: %w", err)
	}

	const q = `
INSERT INTO catalog.group_resolutions (
	group_signature, outcome, member_uuids, decisions, decided_by, created_at
)
VALUES ($1, $2, $3::jsonb, $4::jsonb, NULLIF($5, ''), $6)
ON CONFLICT (group_signature) DO NOTHING
`
	tag, err := tx.Exec(ctx, q, req.Signature, outcome, string(memberJSON), string(decisionJSON), req.DecidedBy, globaltime.UTC())
	if err != nil {
		return fmt.Errorf("claim group resolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: signature %s", ErrGroupAlreadyDecided, req.Signature)
	}
	return nil
}

// lockMembers loads and row-locks every group member. Per-member queries keep
// lock order deterministic because memberUUIDs arrives sorted by signature
// construction at the call sites.
func lockMembers(ctx context.Context, tx db.Tx, memberUUIDs []string) (map[string]memberRow, error) {
	ordered := make([]string, len(memberUUIDs))
	copy(ordered, memberUUIDs)
	sort.Strings(ordered)

	const q = `
SELECT
	l.lesson_id,
	l.lesson_uuid::text,
	l.title,
	l.status,
	l.unresolvable,
	to_jsonb(l)
FROM catalog.lessons l
WHERE l.lesson_uuid = $1::uuid
FOR UPDATE
`
	members := make(map[string]memberRow, len(ordered))
	for _, uuid := range ordered {
		var m memberRow
		row := tx.QueryRow(ctx, q, uuid)
		if err := row.Scan(&m.LessonID, &m.LessonUUID, &m.Title, &m.Status, &m.Unresolvable, &m.Snapshot); err != nil {
			if db.IsNoRows(err) {
				continue
			}
			return nil, fmt.Errorf("lock lesson %s: %w", uuid, err)
		}
		members[m.LessonUUID] = m
	}
	return members, nil
}

func archiveMember(ctx context.Context, tx db.Tx, member, canonical memberRow, signature string) error {
	const insertArchive = `
INSERT INTO catalog.archive_entries (
	lesson_uuid, canonical_lesson_id, group_signature, reason, snapshot, created_at
)
VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6)
`
	_, err := tx.Exec(ctx, insertArchive,
		member.LessonUUID,
		canonical.LessonID,
		signature,
		"duplicate_of_canonical",
		string(member.Snapshot),
		globaltime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert archive entry for %s: %w", member.LessonUUID, err)
	}

	const archiveLesson = `UPDATE catalog.lessons SET status = 'archived', updated_at = $2 WHERE lesson_id = $1`
	if _, err := tx.Exec(ctx, archiveLesson, member.LessonID, globaltime.UTC()); err != nil {
		return fmt.Errorf("archive lesson %s: %w", member.LessonUUID, err)
	}
	return nil
}

// rewriteReferences moves bookmarks and collection items from an archived
// lesson to the canonical one. References the owner already holds on the
// canonical lesson are deleted instead of moved so the per-owner uniqueness
// constraints hold.
func rewriteReferences(ctx context.Context, tx db.Tx, fromLessonID, toLessonID int64) (bookmarks, collections int64, err error) {
	const dropDupBookmarks = `
DELETE FROM catalog.bookmarks b
WHERE b.lesson_id = $1
  AND EXISTS (
	SELECT 1 FROM catalog.bookmarks other
	WHERE other.user_uuid = b.user_uuid AND other.lesson_id = $2
  )
`
	if _, err := tx.Exec(ctx, dropDupBookmarks, fromLessonID, toLessonID); err != nil {
		return 0, 0, fmt.Errorf("drop duplicate bookmarks: %w", err)
	}

	const moveBookmarks = `UPDATE catalog.bookmarks SET lesson_id = $2 WHERE lesson_id = $1`
	tag, err := tx.Exec(ctx, moveBookmarks, fromLessonID, toLessonID)
	if err != nil {
		return 0, 0, fmt.Errorf("move bookmarks: %w", err)
	}
	bookmarks = tag.RowsAffected()

	const dropDupItems = `
DELETE FROM catalog.collection_items ci
WHERE ci.lesson_id = $1
  AND EXISTS (
	SELECT 1 FROM catalog.collection_items other
	WHERE other.collection_uuid = ci.collection_uuid AND other.lesson_id = $2
  )
`
	if _, err := tx.Exec(ctx, dropDupItems, fromLessonID, toLessonID); err != nil {
		return 0, 0, fmt.Errorf("drop duplicate collection items: %w", err)
	}

	const moveItems = `UPDATE catalog.collection_items SET lesson_id = $2 WHERE lesson_id = $1`
	tag, err = tx.Exec(ctx, moveItems, fromLessonID, toLessonID)
	if err != nil {
		return 0, 0, fmt.Errorf("move collection items: %w", err)
	}
	collections = tag.RowsAffected()

	return bookmarks, collections, nil
}
