package dedupe

import (
	"testing"

	"garden.school/lessonbank/internal/match"
)

func TestUnionFindTransitivity(t *testing.T) {
	t.Parallel()

	uf := newUnionFind(5)
	uf.union(0, 1)
	uf.union(1, 2)
	uf.union(3, 4)

	if uf.find(0) != uf.find(2) {
		t.Fatal("0 and 2 should share a root after transitive unions")
	}
	if uf.find(0) == uf.find(3) {
		t.Fatal("0 and 3 should stay in separate components")
	}
	if uf.find(3) != uf.find(4) {
		t.Fatal("3 and 4 should share a root")
	}
}

func TestUnionFindIdempotentUnion(t *testing.T) {
	t.Parallel()

	uf := newUnionFind(3)
	uf.union(0, 1)
	uf.union(0, 1)
	uf.union(1, 0)

	if uf.find(0) != uf.find(1) {
		t.Fatal("repeated unions should keep 0 and 1 joined")
	}
	if uf.find(2) == uf.find(0) {
		t.Fatal("2 was never unioned and must stay apart")
	}
}

func TestGroupSignatureOrderIndependent(t *testing.T) {
	t.Parallel()

	a := GroupSignature([]string{"u3", "u1", "u2"})
	b := GroupSignature([]string{"u1", "u2", "u3"})
	if a != b {
		t.Fatalf("signature depends on member order: %s vs %s", a, b)
	}

	c := GroupSignature([]string{"u1", "u2"})
	if a == c {
		t.Fatal("different member sets must have different signatures")
	}
	if len(a) != 64 {
		t.Fatalf("signature should be sha256 hex, got length %d", len(a))
	}
}

func TestGroupSignatureDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	members := []string{"zz", "aa"}
	_ = GroupSignature(members)
	if members[0] != "zz" || members[1] != "aa" {
		t.Fatalf("input slice was reordered: %v", members)
	}
}

func TestGroupProvenanceHighNeedsTitleAndSemantic(t *testing.T) {
	t.Parallel()

	lessons := []clusterLesson{
		{LessonID: 1},
		{LessonID: 2},
	}
	indices := []int{0, 1}

	both := map[int64]map[int64]pairEvidence{
		1: {2: {score: 0.97, signals: signalTitle | signalSemantic}},
	}
	confidence, method := groupProvenance(indices, lessons, both)
	if confidence != match.ClassificationHigh {
		t.Fatalf("title+semantic pair = %s, want high", confidence)
	}
	if method != "title+semantic" {
		t.Fatalf("detection method = %q, want title+semantic", method)
	}

	titleOnly := map[int64]map[int64]pairEvidence{
		1: {2: {score: 0.7, signals: signalTitle}},
	}
	confidence, method = groupProvenance(indices, lessons, titleOnly)
	if confidence != match.ClassificationMedium {
		t.Fatalf("title-only pair = %s, want medium", confidence)
	}
	if method != "title" {
		t.Fatalf("detection method = %q, want title", method)
	}

	fingerprintOnly := map[int64]map[int64]pairEvidence{
		1: {2: {score: 1.0, signals: signalFingerprint}},
	}
	confidence, method = groupProvenance(indices, lessons, fingerprintOnly)
	if confidence != match.ClassificationMedium {
		t.Fatalf("fingerprint-only pair = %s, want medium", confidence)
	}
	if method != "fingerprint" {
		t.Fatalf("detection method = %q, want fingerprint", method)
	}
}

func TestGroupProvenanceOnePairCorroboratesGroup(t *testing.T) {
	t.Parallel()

	lessons := []clusterLesson{
		{LessonID: 1},
		{LessonID: 2},
		{LessonID: 3},
	}
	evidence := map[int64]map[int64]pairEvidence{
		1: {2: {score: 0.96, signals: signalTitle | signalSemantic}},
		2: {3: {score: 0.95, signals: signalSemantic}},
	}

	confidence, method := groupProvenance([]int{0, 1, 2}, lessons, evidence)
	if confidence != match.ClassificationHigh {
		t.Fatalf("group with one corroborated pair = %s, want high", confidence)
	}
	if method != "title+semantic" {
		t.Fatalf("detection method = %q, want title+semantic", method)
	}
}

func TestPairByFingerprintOnlyContentKind(t *testing.T) {
	t.Parallel()

	s := &Service{cfg: match.DefaultConfig()}
	lessons := []clusterLesson{
		{LessonID: 1, Fingerprint: match.ParseFingerprint("content", "abc")},
		{LessonID: 2, Fingerprint: match.ParseFingerprint("content", "abc")},
		{LessonID: 3, Fingerprint: match.ParseFingerprint("metadata", "abc")},
		{LessonID: 4, Fingerprint: match.ParseFingerprint("metadata", "abc")},
	}

	var pairs [][2]int
	s.pairByFingerprint(lessons, func(i, j int, score float64, signal pairSignal) {
		if score != 1.0 {
			t.Fatalf("fingerprint pair score = %v, want 1.0", score)
		}
		if signal != signalFingerprint {
			t.Fatalf("fingerprint pair signal = %v, want fingerprint", signal)
		}
		pairs = append(pairs, [2]int{i, j})
	})

	if len(pairs) != 1 {
		t.Fatalf("expected one content pair, got %d", len(pairs))
	}
	if pairs[0] != [2]int{0, 1} {
		t.Fatalf("unexpected pair %v", pairs[0])
	}
}

func TestPairByTitleMatchesEqualNormalizedTitles(t *testing.T) {
	t.Parallel()

	s := &Service{cfg: match.DefaultConfig()}
	lessons := []clusterLesson{
		{LessonID: 1, Title: "Garden Salsa Harvest Lesson"},
		{LessonID: 2, Title: "  GARDEN salsa Harvest lesson "},
		{LessonID: 3, Title: "Composting With Worms"},
	}

	var pairs [][2]int
	s.pairByTitle(lessons, func(i, j int, score float64, signal pairSignal) {
		if signal != signalTitle {
			t.Fatalf("title pair signal = %v, want title", signal)
		}
		pairs = append(pairs, [2]int{i, j})
	})

	if len(pairs) != 1 {
		t.Fatalf("expected exactly the identical-title pair, got %d pairs", len(pairs))
	}
	if pairs[0] != [2]int{0, 1} {
		t.Fatalf("unexpected pair %v", pairs[0])
	}
}

func TestPairByTitleIgnoresMetadataDisagreement(t *testing.T) {
	t.Parallel()

	s := &Service{cfg: match.DefaultConfig()}
	lessons := []clusterLesson{
		{LessonID: 1, Title: "Planting the Three Sisters", Metadata: match.Metadata{GradeLevels: []string{"3"}}},
		{LessonID: 2, Title: "Planting the Three Sisters", Metadata: match.Metadata{GradeLevels: []string{"7"}}},
	}

	var recorded int
	s.pairByTitle(lessons, func(i, j int, score float64, signal pairSignal) {
		recorded++
		if score >= s.cfg.HighThreshold {
			t.Fatalf("disjoint-metadata pair scored %v, expected below %v", score, s.cfg.HighThreshold)
		}
	})

	if recorded != 1 {
		t.Fatal("equal normalized titles must pair even when the combined score is low")
	}
}

func TestPairByTitlePrefersStoredNormalizedTitle(t *testing.T) {
	t.Parallel()

	s := &Service{cfg: match.DefaultConfig()}
	lessons := []clusterLesson{
		{LessonID: 1, Title: "Fall Harvest", NormalizedTitle: "fall harvest"},
		{LessonID: 2, Title: "FALL   HARVEST"},
	}

	var recorded int
	s.pairByTitle(lessons, func(i, j int, score float64, signal pairSignal) {
		recorded++
	})

	if recorded != 1 {
		t.Fatal("stored normalized title must bucket with the in-place normalized fallback")
	}
}

func TestAssembleGroupsSkipsAllUnresolvableGroups(t *testing.T) {
	t.Parallel()

	s := &Service{cfg: match.DefaultConfig()}
	lessons := []clusterLesson{
		{LessonID: 1, LessonUUID: "u1", Title: "A", Unresolvable: true},
		{LessonID: 2, LessonUUID: "u2", Title: "B", Unresolvable: true},
		{LessonID: 3, LessonUUID: "u3", Title: "C"},
		{LessonID: 4, LessonUUID: "u4", Title: "D"},
	}

	uf := newUnionFind(len(lessons))
	uf.union(0, 1)
	uf.union(2, 3)
	evidence := map[int64]map[int64]pairEvidence{
		1: {2: {score: 0.9, signals: signalSemantic}},
		3: {4: {score: 0.9, signals: signalSemantic}},
	}

	groups := s.assembleGroups(lessons, uf, evidence)
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	if got := groups[0].Signature; got != GroupSignature([]string{"u3", "u4"}) {
		t.Fatalf("surviving group has wrong signature: %s", got)
	}
	if groups[0].DetectionMethod != "semantic" {
		t.Fatalf("detection method = %q, want semantic", groups[0].DetectionMethod)
	}
	for _, member := range groups[0].Members {
		if member.PairScore != 0.9 {
			t.Fatalf("member %s pair score = %v, want 0.9", member.LessonUUID, member.PairScore)
		}
	}
}

func TestAssembleGroupsKeepsMixedUnresolvableGroup(t *testing.T) {
	t.Parallel()

	s := &Service{cfg: match.DefaultConfig()}
	lessons := []clusterLesson{
		{LessonID: 1, LessonUUID: "u1", Title: "A", Unresolvable: true},
		{LessonID: 2, LessonUUID: "u2", Title: "B"},
	}

	uf := newUnionFind(len(lessons))
	uf.union(0, 1)
	evidence := map[int64]map[int64]pairEvidence{
		1: {2: {score: 0.88, signals: signalSemantic}},
	}

	groups := s.assembleGroups(lessons, uf, evidence)
	if len(groups) != 1 {
		t.Fatalf("group with one resolvable member must survive, got %d groups", len(groups))
	}
}
