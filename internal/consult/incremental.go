package consult

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mfalkner/arbiter/internal/incremental"
	"github.com/mfalkner/arbiter/internal/models"
	"github.com/mfalkner/arbiter/internal/parse"
)

// FileReviewResult is the outcome of an incremental file review: per-file
// parsed reviews, with unchanged files served from the previous run and
// only changed files re-consulted.
type FileReviewResult struct {
	Subject   string                         `json:"subject"`
	Changes   incremental.Changes            `json:"changes"`
	Reviews   map[string]models.ParsedReview `json:"reviews"`
	Consulted int                            `json:"consulted"`
	Reused    int                            `json:"reused"`
}

func fileReviewKey(subject string) string {
	return "filereview_" + subject
}

// ReviewFiles consults only for files whose content hash changed since the
// last run for this subject, merges fresh reviews with cached ones, and
// persists the new snapshot. A file whose fresh consultation fails is
// dropped from the result rather than served stale.
func (o *Orchestrator) ReviewFiles(ctx context.Context, subject string, paths []string, req Request) (*FileReviewResult, error) {
	if o.cache == nil {
		return nil, wrapConsultation(fmt.Errorf("incremental review requires a cache"))
	}

	tracker := incremental.NewTracker(o.cache)
	oldHashes := tracker.Load(subject)
	newHashes := incremental.HashFiles(paths)
	changes := incremental.CompareFileHashes(oldHashes, newHashes)

	// Removed paths join the changed set: with no fresh entry they drop
	// out of the merge instead of lingering from the cached run.
	changed := changes.ChangedSet()
	for _, p := range changes.Removed {
		changed[p] = true
	}

	cached := o.loadFileReviews(subject)
	fresh := map[string]string{}

	for _, path := range append(append([]string{}, changes.Added...), changes.Modified...) {
		content, err := os.ReadFile(path)
		if err != nil {
			o.logf("read %s: %v", path, err)
			continue
		}

		fileReq := req
		fileReq.Prompt = BuildReviewPrompt("file_review", path, string(content))

		resp, err := o.Consult(ctx, fileReq)
		if err != nil || !resp.OK() {
			// Dropped from the result entirely: a visible gap beats a
			// stale cached review.
			if err != nil {
				o.logf("consult %s: %v", path, err)
			}
			continue
		}

		review := parse.Response(resp.Output)
		data, err := json.Marshal(review)
		if err != nil {
			continue
		}
		fresh[path] = string(data)
	}

	merged := incremental.MergeResults(cached, fresh, changed)

	result := &FileReviewResult{
		Subject:   subject,
		Changes:   changes,
		Reviews:   make(map[string]models.ParsedReview, len(merged)),
		Consulted: len(fresh),
		Reused:    len(merged) - len(fresh),
	}
	for path, data := range merged {
		var review models.ParsedReview
		if err := json.Unmarshal([]byte(data), &review); err != nil {
			continue
		}
		result.Reviews[path] = review
	}

	meta := map[string]string{"subject": subject, "kind": "file_review"}
	if err := o.cache.Set(fileReviewKey(subject), merged, incremental.StateTTL, meta); err != nil {
		o.logf("file review cache write: %v", err)
	}
	if err := tracker.Save(subject, newHashes); err != nil {
		o.logf("file hash state write: %v", err)
	}
	return result, nil
}

// loadFileReviews returns the previous run's serialized per-file reviews.
func (o *Orchestrator) loadFileReviews(subject string) map[string]string {
	raw, ok := o.cache.Get(fileReviewKey(subject))
	if !ok {
		return map[string]string{}
	}
	var cached map[string]string
	if err := json.Unmarshal(raw, &cached); err != nil {
		return map[string]string{}
	}
	return cached
}
