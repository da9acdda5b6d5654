package engine

import (
	"context"
	"errors"
	"fmt"

	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/dedup"
	"horse.fit/techwatch/internal/embedding"
	"horse.fit/techwatch/internal/index"
	"horse.fit/techwatch/internal/ledger"
	"horse.fit/techwatch/internal/scorer"
)

// itemRun carries work that survives a stale retry: the vector and the
// scorer's assessment are computed at most once per item.
type itemRun struct {
	item       ledger.Item
	vector     []float64
	assessment *ledger.Assessment
}

type resolvedMatch struct {
	item  ledger.Item
	match index.Match
}

func (e *Engine) processItem(ctx context.Context, item ledger.Item) (dedup.Kind, error) {
	run := &itemRun{item: item}
	for attempt := 1; ; attempt++ {
		kind, err := e.processOnce(ctx, run)
		if err == nil {
			return kind, nil
		}
		if !errors.Is(err, ledger.ErrStale) || attempt >= e.opts.MaxAttempts || ctx.Err() != nil {
			return "", err
		}
		e.logger.Debug().
			Err(err).
			Int64("item_id", item.ID).
			Int("attempt", attempt).
			Msg("representative changed, retrying item")
	}
}

func (e *Engine) processOnce(ctx context.Context, run *itemRun) (dedup.Kind, error) {
	item := run.item

	// The selection snapshot may be stale: another worker or process can have
	// committed this item since. Nothing is embedded, scored or upserted then.
	if err := e.checkPending(ctx, item.ID); err != nil {
		return "", err
	}

	if run.vector == nil {
		vector, err := e.embed(ctx, item)
		if err != nil {
			return "", err
		}
		run.vector = vector
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.opts.IndexTimeout)
	matches, err := e.index.Query(queryCtx, run.vector, item.Topic, e.opts.Candidates, e.opts.Threshold)
	cancel()
	if err != nil {
		return "", fmt.Errorf("query index for item %d: %w", item.ID, err)
	}

	resolved, err := e.resolveRepresentative(ctx, item, matches)
	if err != nil {
		return "", err
	}

	subject := dedup.Subject{ItemID: item.ID, Title: item.Title, Authority: item.Authority}
	var rep *dedup.Representative
	var repItem *ledger.Item
	similarity := 0.0
	if resolved != nil {
		repItem = &resolved.item
		similarity = resolved.match.Score
		rep = &dedup.Representative{
			ItemID:       resolved.item.ID,
			Ref:          resolved.match.Ref,
			Authority:    resolved.item.Authority,
			Score:        resolved.item.Score,
			ClusterCount: resolved.item.ClusterCount,
			Similarity:   similarity,
		}
	}
	relation := e.classifier.Classify(subject, rep)

	if dedup.NeedsEvaluation(relation) && run.assessment == nil {
		run.assessment = e.evaluate(ctx, item)
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	newRef := ""
	if dedup.NeedsVector(relation) {
		newRef = e.newRef()
	}

	transition, err := ledger.Plan(ledger.PlanInput{
		Relation:       relation,
		Item:           item,
		Representative: repItem,
		Similarity:     similarity,
		NewRef:         newRef,
		Assessment:     run.assessment,
	})
	if err != nil {
		return "", fmt.Errorf("plan item %d: %w", item.ID, err)
	}

	if newRef != "" {
		upsertCtx, cancel := context.WithTimeout(ctx, e.opts.IndexTimeout)
		err := e.index.Upsert(upsertCtx, newRef, run.vector, index.Payload{ItemID: item.ID, Topic: item.Topic})
		cancel()
		if err != nil {
			return "", fmt.Errorf("upsert vector for item %d: %w", item.ID, err)
		}
	}

	if err := e.store.CommitTransition(ctx, transition); err != nil {
		if newRef == "" || !e.commitLanded(ctx, item.ID, newRef, err) {
			return "", fmt.Errorf("commit item %d: %w", item.ID, err)
		}
	}
	if transition.ReleasedRef != nil {
		e.releaseRefs(ctx, item.ID, *transition.ReleasedRef)
	}

	kind := dedup.KindOf(relation)
	event := e.logger.Info().
		Int64("item_id", item.ID).
		Str("topic", item.Topic).
		Str("relation", string(kind))
	if resolved != nil {
		event = event.Int64("representative_id", resolved.item.ID).Float64("similarity", similarity)
	}
	if transition.Event.UsedFallback {
		event = event.Bool("fallback_score", true)
	}
	event.Msg("item processed")

	return kind, nil
}

func (e *Engine) checkPending(ctx context.Context, itemID int64) error {
	current, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("reload item %d: %w", itemID, err)
	}
	if current.Status != ledger.StatusReady || current.EmbeddingRef != nil {
		return fmt.Errorf("%w: item_id=%d status=%s", ledger.ErrAlreadyProcessed, itemID, current.Status)
	}
	return nil
}

// commitLanded decides what to do with newRef after a failed commit. A commit
// can fail after the database applied it (lost acknowledgement), so the
// vector is only deleted once the item is known not to own it. It reports
// true when the item does own newRef.
func (e *Engine) commitLanded(ctx context.Context, itemID int64, newRef string, commitErr error) bool {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.IndexTimeout)
	current, err := e.store.GetItem(lookupCtx, itemID)
	cancel()
	if err != nil {
		e.logger.Warn().
			Err(err).
			AnErr("commit_error", commitErr).
			Int64("item_id", itemID).
			Str("ref", newRef).
			Msg("commit outcome unknown, keeping vector")
		return false
	}
	if current.Live(newRef) {
		e.logger.Warn().
			AnErr("commit_error", commitErr).
			Int64("item_id", itemID).
			Str("ref", newRef).
			Msg("commit reported an error but was applied")
		return true
	}
	e.releaseRefs(ctx, itemID, newRef)
	return false
}

func (e *Engine) embed(ctx context.Context, item ledger.Item) ([]float64, error) {
	embedCtx, cancel := context.WithTimeout(ctx, e.opts.EmbedTimeout)
	defer cancel()

	vector, err := e.embedder.Embed(embedCtx, item.Topic, item.Title, item.ContentText)
	if err != nil {
		return nil, fmt.Errorf("embed item %d: %w", item.ID, err)
	}
	if err := embedding.Validate(vector, e.embedder.Dimensions()); err != nil {
		return nil, fmt.Errorf("embed item %d: %w", item.ID, err)
	}
	return vector, nil
}

// resolveRepresentative returns the best match that is still a live
// representative of the item's topic. Orphaned vectors and vanished rows are
// passed over.
func (e *Engine) resolveRepresentative(ctx context.Context, item ledger.Item, matches []index.Match) (*resolvedMatch, error) {
	for _, match := range matches {
		if match.Payload.ItemID == item.ID {
			continue
		}
		if match.Payload.Topic != item.Topic {
			e.logger.Warn().
				Int64("item_id", item.ID).
				Str("ref", match.Ref).
				Str("match_topic", match.Payload.Topic).
				Msg("index returned a match from another topic")
			continue
		}

		candidate, err := e.store.GetItem(ctx, match.Payload.ItemID)
		if err != nil {
			if errors.Is(err, db.ErrItemNotFound) {
				e.logger.Warn().
					Int64("item_id", item.ID).
					Int64("representative_id", match.Payload.ItemID).
					Str("ref", match.Ref).
					Msg("matched representative no longer exists")
				continue
			}
			return nil, fmt.Errorf("load representative %d: %w", match.Payload.ItemID, err)
		}
		if candidate.Topic != item.Topic || !candidate.Live(match.Ref) {
			continue
		}
		return &resolvedMatch{item: candidate, match: match}, nil
	}
	return nil, nil
}

func (e *Engine) evaluate(ctx context.Context, item ledger.Item) *ledger.Assessment {
	req := scorer.Request{
		Topic:      item.Topic,
		Title:      item.Title,
		Content:    item.ContentText,
		SourceType: string(item.Authority),
	}
	if item.SourceURL != nil {
		req.SourceURL = *item.SourceURL
	}

	result := e.scorer.Evaluate(ctx, req)
	score, summary, fallback := result.Resolve(e.opts.FallbackScore)
	if !fallback && ledger.CheckScore(score) != nil {
		e.logger.Warn().
			Int64("item_id", item.ID).
			Float64("score", score).
			Msg("scorer returned an out-of-range score, using fallback")
		score, summary, fallback = scorer.Failure("score out of range").Resolve(e.opts.FallbackScore)
	}
	if fallback && result.Reason() != "" {
		e.logger.Warn().
			Int64("item_id", item.ID).
			Str("topic", item.Topic).
			Str("reason", result.Reason()).
			Msg("scorer failed, using fallback score")
	}
	return &ledger.Assessment{Score: score, Summary: summary, Fallback: fallback}
}

// releaseRefs removes vectors that are no longer live. Failures only leave
// orphans behind, which queries already skip.
func (e *Engine) releaseRefs(ctx context.Context, itemID int64, refs ...string) {
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.IndexTimeout)
	defer cancel()
	if err := e.index.Delete(deleteCtx, refs); err != nil {
		e.logger.Warn().
			Err(err).
			Int64("item_id", itemID).
			Strs("refs", refs).
			Msg("vector cleanup failed")
	}
}
