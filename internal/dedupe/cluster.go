package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"garden.school/lessonbank/internal/db"
	"garden.school/lessonbank/internal/match"
)

// clusterScanLimit bounds one corpus-cleanup pass. Large catalogs are swept
// across repeated runs rather than one unbounded query.
const clusterScanLimit = 5000

type GroupMember struct {
	LessonID     int64   `json:"-"`
	LessonUUID   string  `json:"lesson_id"`
	Title        string  `json:"title"`
	PairScore    float64 `json:"pair_score"`
	Unresolvable bool    `json:"-"`
}

type DuplicateGroup struct {
	Signature       string               `json:"signature"`
	Confidence      match.Classification `json:"confidence"`
	DetectionMethod string               `json:"detection_method"`
	Members         []GroupMember        `json:"members"`
}

type clusterLesson struct {
	LessonID        int64
	LessonUUID      string
	Title           string
	NormalizedTitle string
	Metadata        match.Metadata
	Fingerprint     match.Fingerprint
	Unresolvable    bool
}

// pairSignal identifies which detection rule produced a pair. A pair merged
// from several sweeps carries the union of its signals.
type pairSignal uint8

const (
	signalFingerprint pairSignal = 1 << iota
	signalTitle
	signalSemantic
)

// pairEvidence is the merged record of one unordered lesson pair: the best
// score any signal produced and every signal that fired.
type pairEvidence struct {
	score   float64
	signals pairSignal
}

// unionFind with union by rank and path compression. Indices are positions
// in the cluster scan, not lesson IDs.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// GroupSignature derives the stable identity of a member set: the sha256 hex
// of the sorted member UUIDs. The same lessons always yield the same
// signature regardless of discovery order.
func GroupSignature(memberUUIDs []string) string {
	sorted := make([]string, len(memberUUIDs))
	copy(sorted, memberUUIDs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// BuildGroups sweeps the active catalog for duplicate groups. Pairing is
// transitive: if A matches B and B matches C, all three land in one group
// even when A and C score below threshold directly. Groups whose signature
// already has a recorded resolution, and pairs where both sides are marked
// unresolvable, are suppressed.
func (s *Service) BuildGroups(ctx context.Context) ([]DuplicateGroup, error) {
	lessons, err := s.loadClusterLessons(ctx)
	if err != nil {
		return nil, err
	}
	if len(lessons) < 2 {
		return nil, nil
	}

	indexByID := make(map[int64]int, len(lessons))
	for i, l := range lessons {
		indexByID[l.LessonID] = i
	}

	uf := newUnionFind(len(lessons))
	evidence := make(map[int64]map[int64]pairEvidence)

	recordPair := func(i, j int, score float64, signal pairSignal) {
		a, b := lessons[i], lessons[j]
		// A pair of two unresolvable lessons is a known false positive; it
		// must not stitch groups together. A pair with one unresolvable side
		// still clusters.
		if a.Unresolvable && b.Unresolvable {
			return
		}
		uf.union(i, j)
		lo, hi := a.LessonID, b.LessonID
		if lo > hi {
			lo, hi = hi, lo
		}
		if evidence[lo] == nil {
			evidence[lo] = make(map[int64]pairEvidence)
		}
		ev := evidence[lo][hi]
		ev.signals |= signal
		if score > ev.score {
			ev.score = score
		}
		evidence[lo][hi] = ev
	}

	s.pairByFingerprint(lessons, recordPair)
	s.pairByTitle(lessons, recordPair)
	if err := s.pairBySemantics(ctx, lessons, indexByID, recordPair); err != nil {
		s.logger.Warn().Err(err).Msg("semantic pairing failed; grouping from title and fingerprint signals only")
	}

	groups := s.assembleGroups(lessons, uf, evidence)
	groups, err = s.filterDecidedGroups(ctx, groups)
	if err != nil {
		return nil, err
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Confidence != groups[j].Confidence {
			return groups[i].Confidence == match.ClassificationHigh
		}
		return groups[i].Signature < groups[j].Signature
	})

	s.logger.Info().Int("lessons_scanned", len(lessons)).Int("groups", len(groups)).
		Msg("duplicate group sweep completed")

	return groups, nil
}

func (s *Service) loadClusterLessons(ctx context.Context) ([]clusterLesson, error) {
	const q = `
SELECT
	l.lesson_id,
	l.lesson_uuid::text,
	l.title,
	COALESCE(l.normalized_title, ''),
	l.metadata,
	COALESCE(l.fingerprint_kind, ''),
	COALESCE(l.fingerprint_digest, ''),
	l.unresolvable
FROM catalog.lessons l
WHERE l.status = 'active'
ORDER BY l.lesson_id ASC
LIMIT $1
`
	rows, err := s.pool.Query(ctx, q, clusterScanLimit)
	if err != nil {
		return nil, fmt.Errorf("query cluster lessons: %w", err)
	}
	defer rows.Close()

	var out []clusterLesson
	for rows.Next() {
		var l clusterLesson
		var metadataJSON []byte
		var kind, digest string
		if err := rows.Scan(&l.LessonID, &l.LessonUUID, &l.Title, &l.NormalizedTitle, &metadataJSON, &kind, &digest, &l.Unresolvable); err != nil {
			return nil, fmt.Errorf("scan cluster lesson: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &l.Metadata); err != nil {
				s.logger.Warn().Err(err).Int64("lesson_id", l.LessonID).
					Msg("skipping lesson with malformed metadata in cluster sweep")
				continue
			}
		}
		l.Fingerprint = match.ParseFingerprint(kind, digest)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cluster lessons: %w", err)
	}
	return out, nil
}

// pairByFingerprint unions lessons sharing a content fingerprint. Metadata
// fingerprints are too coarse for unattended grouping and are ignored here.
func (s *Service) pairByFingerprint(lessons []clusterLesson, record func(i, j int, score float64, signal pairSignal)) {
	byDigest := make(map[string][]int)
	for i, l := range lessons {
		if l.Fingerprint.Kind != match.FingerprintContent || l.Fingerprint.IsZero() {
			continue
		}
		byDigest[l.Fingerprint.Digest] = append(byDigest[l.Fingerprint.Digest], i)
	}
	for _, indices := range byDigest {
		for k := 1; k < len(indices); k++ {
			record(indices[0], indices[k], 1.0, signalFingerprint)
		}
	}
}

// pairByTitle pairs every two lessons whose normalized titles are equal.
// Equality alone records the pair; metadata only feeds the displayed pair
// score. Lessons fingerprinted before ingest carry the stored
// normalized_title; older rows fall back to normalizing in place.
func (s *Service) pairByTitle(lessons []clusterLesson, record func(i, j int, score float64, signal pairSignal)) {
	buckets := make(map[string][]int)
	for i, l := range lessons {
		key := l.NormalizedTitle
		if key == "" {
			key = match.NormalizeText(l.Title)
		}
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], i)
	}

	for _, indices := range buckets {
		for x := 0; x < len(indices); x++ {
			for y := x + 1; y < len(indices); y++ {
				i, j := indices[x], indices[y]
				a, b := lessons[i], lessons[j]
				scores := match.Scores{
					Lexical:          s.cfg.TitleSimilarity(a.Title, b.Title),
					AttributeOverlap: s.cfg.AttributeOverlap(a.Metadata, b.Metadata),
				}
				record(i, j, s.cfg.Combine(scores), signalTitle)
			}
		}
	}
}

// pairBySemantics pulls near-identical embedding pairs in one self-join and
// unions them. The cluster threshold is stricter than the per-submission
// semantic floor.
func (s *Service) pairBySemantics(ctx context.Context, lessons []clusterLesson, indexByID map[int64]int, record func(i, j int, score float64, signal pairSignal)) error {
	const q = `
SELECT
	a.lesson_id,
	b.lesson_id,
	(1 - (ea.embedding <=> eb.embedding))::DOUBLE PRECISION AS cosine
FROM catalog.lesson_embeddings ea
JOIN catalog.lesson_embeddings eb
  ON ea.lesson_id < eb.lesson_id
 AND ea.model_name = eb.model_name
 AND ea.model_version = eb.model_version
JOIN catalog.lessons a ON a.lesson_id = ea.lesson_id AND a.status = 'active'
JOIN catalog.lessons b ON b.lesson_id = eb.lesson_id AND b.status = 'active'
WHERE ea.model_name = $1
  AND ea.model_version = $2
  AND (1 - (ea.embedding <=> eb.embedding)) >= $3
`
	rows, err := s.pool.Query(ctx, q, s.modelName, s.modelVersion, s.cfg.ClusterCosineThreshold)
	if err != nil {
		return fmt.Errorf("query semantic pairs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var aID, bID int64
		var cosine float64
		if err := rows.Scan(&aID, &bID, &cosine); err != nil {
			return fmt.Errorf("scan semantic pair: %w", err)
		}
		i, okA := indexByID[aID]
		j, okB := indexByID[bID]
		if !okA || !okB {
			continue
		}
		record(i, j, cosine, signalSemantic)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate semantic pairs: %w", err)
	}
	return nil
}

func (s *Service) assembleGroups(lessons []clusterLesson, uf *unionFind, evidence map[int64]map[int64]pairEvidence) []DuplicateGroup {
	byRoot := make(map[int][]int)
	for i := range lessons {
		byRoot[uf.find(i)] = append(byRoot[uf.find(i)], i)
	}

	var groups []DuplicateGroup
	for _, indices := range byRoot {
		if len(indices) < 2 {
			continue
		}

		members := make([]GroupMember, 0, len(indices))
		uuids := make([]string, 0, len(indices))
		allUnresolvable := true
		for _, i := range indices {
			l := lessons[i]
			members = append(members, GroupMember{
				LessonID:     l.LessonID,
				LessonUUID:   l.LessonUUID,
				Title:        l.Title,
				PairScore:    bestPairScore(l.LessonID, indices, lessons, evidence),
				Unresolvable: l.Unresolvable,
			})
			uuids = append(uuids, l.LessonUUID)
			if !l.Unresolvable {
				allUnresolvable = false
			}
		}
		if allUnresolvable {
			continue
		}

		sort.Slice(members, func(a, b int) bool { return members[a].LessonUUID < members[b].LessonUUID })

		confidence, method := groupProvenance(indices, lessons, evidence)
		groups = append(groups, DuplicateGroup{
			Signature:       GroupSignature(uuids),
			Confidence:      confidence,
			DetectionMethod: method,
			Members:         members,
		})
	}
	return groups
}

func pairEvidenceFor(a, b int64, evidence map[int64]map[int64]pairEvidence) (pairEvidence, bool) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	ev, ok := evidence[lo][hi]
	return ev, ok
}

func bestPairScore(lessonID int64, indices []int, lessons []clusterLesson, evidence map[int64]map[int64]pairEvidence) float64 {
	best := 0.0
	for _, i := range indices {
		other := lessons[i].LessonID
		if other == lessonID {
			continue
		}
		if ev, ok := pairEvidenceFor(lessonID, other, evidence); ok && ev.score > best {
			best = ev.score
		}
	}
	return best
}

// groupProvenance derives the group confidence label and the detection-method
// provenance string. Confidence is high only when at least one pair inside
// the group fired on both the title and the semantic signal; every other
// group is medium and left to the operator's judgement.
func groupProvenance(indices []int, lessons []clusterLesson, evidence map[int64]map[int64]pairEvidence) (match.Classification, string) {
	const corroborated = signalTitle | signalSemantic

	var union pairSignal
	confidence := match.ClassificationMedium
	for x := 0; x < len(indices); x++ {
		for y := x + 1; y < len(indices); y++ {
			ev, ok := pairEvidenceFor(lessons[indices[x]].LessonID, lessons[indices[y]].LessonID, evidence)
			if !ok {
				continue
			}
			union |= ev.signals
			if ev.signals&corroborated == corroborated {
				confidence = match.ClassificationHigh
			}
		}
	}

	var methods []string
	if union&signalFingerprint != 0 {
		methods = append(methods, "fingerprint")
	}
	if union&signalTitle != 0 {
		methods = append(methods, "title")
	}
	if union&signalSemantic != 0 {
		methods = append(methods, "semantic")
	}
	return confidence, strings.Join(methods, "+")
}

// filterDecidedGroups drops groups whose exact member set was already
// resolved or dismissed by an operator. A group whose membership changed
// since the decision has a new signature and surfaces again.
func (s *Service) filterDecidedGroups(ctx context.Context, groups []DuplicateGroup) ([]DuplicateGroup, error) {
	if len(groups) == 0 {
		return groups, nil
	}

	const q = `SELECT 1 FROM catalog.group_resolutions WHERE group_signature = $1`

	kept := groups[:0]
	for _, group := range groups {
		row := s.pool.QueryRow(ctx, q, group.Signature)
		var one int
		err := row.Scan(&one)
		switch {
		case err == nil:
			continue
		case db.IsNoRows(err):
			kept = append(kept, group)
		default:
			return nil, fmt.Errorf("check group resolution signature=%s: %w", group.Signature, err)
		}
	}
	return kept, nil
}
