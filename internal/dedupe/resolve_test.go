package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"garden.school/lessonbank/internal/db"
)

// stubTx satisfies db.Tx without a database. Every Exec reports zero rows
// affected and every QueryRow scans as no-rows.
type stubTx struct {
	execQueries []string
}

func (t *stubTx) QueryRow(ctx context.Context, query string, args ...any) *db.Row {
	return &db.Row{}
}

func (t *stubTx) Query(ctx context.Context, query string, args ...any) (*db.Rows, error) {
	return &db.Rows{}, nil
}

func (t *stubTx) Exec(ctx context.Context, query string, args ...any) (db.CommandTag, error) {
	t.execQueries = append(t.execQueries, query)
	return db.CommandTag{}, nil
}

func (t *stubTx) Commit(ctx context.Context) error   { return nil }
func (t *stubTx) Rollback(ctx context.Context) error { return nil }

func TestSplitDecisionsSingleKeep(t *testing.T) {
	t.Parallel()

	kept, archived, unresolvable, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u2", Decision: DecisionArchive},
		{LessonUUID: "u1", Decision: DecisionKeep},
		{LessonUUID: "u4", Decision: DecisionUnresolvable},
		{LessonUUID: "u3", Decision: DecisionArchive},
	})
	if err != nil {
		t.Fatalf("splitDecisions returned error: %v", err)
	}
	if len(kept) != 1 || kept[0] != "u1" {
		t.Fatalf("kept = %v, want [u1]", kept)
	}
	if len(archived) != 2 || archived["u2"] != "u1" || archived["u3"] != "u1" {
		t.Fatalf("archived = %v, want u2 and u3 defaulted to u1", archived)
	}
	if len(unresolvable) != 1 || unresolvable[0] != "u4" {
		t.Fatalf("unresolvable = %v, want [u4]", unresolvable)
	}
}

func TestSplitDecisionsMultipleKeepsWithTargets(t *testing.T) {
	t.Parallel()

	kept, archived, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "ub", Decision: DecisionKeep},
		{LessonUUID: "ua", Decision: DecisionKeep},
		{LessonUUID: "uc", Decision: DecisionArchive, ArchiveTo: "ua"},
		{LessonUUID: "ud", Decision: DecisionArchive, ArchiveTo: "ub"},
	})
	if err != nil {
		t.Fatalf("splitDecisions returned error: %v", err)
	}
	if len(kept) != 2 || kept[0] != "ua" || kept[1] != "ub" {
		t.Fatalf("kept = %v, want [ua ub]", kept)
	}
	if archived["uc"] != "ua" || archived["ud"] != "ub" {
		t.Fatalf("archived = %v, want uc->ua and ud->ub", archived)
	}
}

func TestSplitDecisionsRejectsMissingKeep(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u1", Decision: DecisionArchive},
		{LessonUUID: "u2", Decision: DecisionArchive},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for missing keep, got %v", err)
	}
}

func TestSplitDecisionsRejectsUntargetedArchiveWithSeveralKeeps(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u1", Decision: DecisionKeep},
		{LessonUUID: "u2", Decision: DecisionKeep},
		{LessonUUID: "u3", Decision: DecisionArchive},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for ambiguous archive target, got %v", err)
	}
}

func TestSplitDecisionsRejectsTargetNotKept(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u1", Decision: DecisionKeep},
		{LessonUUID: "u2", Decision: DecisionArchive, ArchiveTo: "u3"},
		{LessonUUID: "u3", Decision: DecisionArchive, ArchiveTo: "u1"},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision when archive target is itself archived, got %v", err)
	}
}

func TestSplitDecisionsRejectsSelfTarget(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u1", Decision: DecisionKeep},
		{LessonUUID: "u2", Decision: DecisionArchive, ArchiveTo: "u2"},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for self archive target, got %v", err)
	}
}

func TestSplitDecisionsRejectsTargetOnKeep(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u1", Decision: DecisionKeep, ArchiveTo: "u2"},
		{LessonUUID: "u2", Decision: DecisionArchive},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for archive target on keep, got %v", err)
	}
}

func TestSplitDecisionsRejectsDuplicateMember(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u1", Decision: DecisionKeep},
		{LessonUUID: "u1", Decision: DecisionArchive},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for duplicate member, got %v", err)
	}
}

func TestSplitDecisionsRejectsUnknownDecision(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u1", Decision: DecisionKeep},
		{LessonUUID: "u2", Decision: "merge"},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for unknown decision, got %v", err)
	}
}

func TestSplitDecisionsRejectsSingleMember(t *testing.T) {
	t.Parallel()

	_, _, _, err := splitDecisions([]MemberDecision{
		{LessonUUID: "u1", Decision: DecisionKeep},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision for single decision, got %v", err)
	}
}

func TestClaimResolutionRejectsDecidedSignature(t *testing.T) {
	t.Parallel()

	s := &Service{logger: zerolog.Nop()}
	tx := &stubTx{}
	req := ResolveRequest{
		Signature: GroupSignature([]string{"u1", "u2"}),
		Decisions: []MemberDecision{
			{LessonUUID: "u1", Decision: DecisionKeep},
			{LessonUUID: "u2", Decision: DecisionArchive},
		},
	}

	err := s.claimResolution(context.Background(), tx, req, []string{"u1", "u2"}, "resolved")
	if !errors.Is(err, ErrGroupAlreadyDecided) {
		t.Fatalf("zero rows affected must surface ErrGroupAlreadyDecided, got %v", err)
	}
	if len(tx.execQueries) != 1 || !strings.Contains(tx.execQueries[0], "ON CONFLICT (group_signature) DO NOTHING") {
		t.Fatalf("claim must use a conflict-tolerant insert, got %v", tx.execQueries)
	}
}

func TestLockMembersSkipsMissingRows(t *testing.T) {
	t.Parallel()

	members, err := lockMembers(context.Background(), &stubTx{}, []string{"u2", "u1"})
	if err != nil {
		t.Fatalf("missing rows must not be an error at lock time: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected no locked members, got %v", members)
	}
}

func TestResolveGroupValidatesBeforeTouchingStore(t *testing.T) {
	t.Parallel()

	s := &Service{logger: zerolog.Nop()}

	_, err := s.ResolveGroup(context.Background(), ResolveRequest{
		Signature: "abc",
		Decisions: []MemberDecision{
			{LessonUUID: "u1", Decision: DecisionArchive},
			{LessonUUID: "u2", Decision: DecisionArchive},
		},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("decision validation must run before any store access, got %v", err)
	}

	_, err = s.ResolveGroup(context.Background(), ResolveRequest{
		Signature: "not-the-member-signature",
		Decisions: []MemberDecision{
			{LessonUUID: "u1", Decision: DecisionKeep},
			{LessonUUID: "u2", Decision: DecisionArchive},
		},
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("signature check must run before any store access, got %v", err)
	}
}

func TestFilterDecidedGroupsKeepsUndecided(t *testing.T) {
	t.Parallel()

	s := &Service{logger: zerolog.Nop()}
	groups := []DuplicateGroup{
		{Signature: GroupSignature([]string{"u1", "u2"})},
		{Signature: GroupSignature([]string{"u3", "u4"})},
	}

	kept, err := s.filterDecidedGroups(context.Background(), groups)
	if err != nil {
		t.Fatalf("filterDecidedGroups returned error: %v", err)
	}
	if len(kept) != 2 {
		t.Fatalf("groups without a resolution row must survive, got %d of 2", len(kept))
	}
}

func TestResolveResultReportsArchivedIDs(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(ResolveResult{
		Signature:     "sig",
		KeptUUIDs:     []string{"ua"},
		ArchivedUUIDs: []string{"ub", "uc"},
	})
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	ids, ok := decoded["archived_ids"].([]any)
	if !ok || len(ids) != 2 {
		t.Fatalf("response must carry archived_ids, got %v", decoded)
	}
}
