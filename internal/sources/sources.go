package sources

import (
	"context"
	"fmt"
	"log"
	"time"

	"ahjosync/internal/ahjo"
	"ahjosync/internal/domain"
	"ahjosync/internal/repo"
)

// Syncer runs bulk imports from the remote system into the local store.
// Every stored record goes through an idempotent upsert, so overlapping
// or repeated backfills are safe.
type Syncer struct {
	Client *ahjo.Client
	Repo   repo.Repo
	Lang   string
}

// BackfillResult reports how much one bulk run covered.
type BackfillResult struct {
	Fetched int
	Stored  int
}

// BackfillCases imports every case handled in [after, before), chunked
// into date-range batches of the given size.
func (s *Syncer) BackfillCases(ctx context.Context, after, before time.Time, chunk time.Duration) (BackfillResult, error) {
	var res BackfillResult
	batch := s.Client.Cases(s.Lang, after, before, chunk)
	for batch.Next(ctx) {
		c := batch.Case()
		res.Fetched++
		if err := s.Repo.UpsertCase(ctx, c); err != nil {
			return res, fmt.Errorf("store case %s: %w", c.ID, err)
		}
		res.Stored++
	}
	if err := batch.Err(); err != nil {
		return res, err
	}
	log.Printf("backfill cases: %d stored (%s..%s)", res.Stored, after.Format("2006-01-02"), before.Format("2006-01-02"))
	return res, nil
}

// BackfillDecisionmakers imports every decisionmaker active in
// [after, before).
func (s *Syncer) BackfillDecisionmakers(ctx context.Context, after, before time.Time, chunk time.Duration) (BackfillResult, error) {
	var res BackfillResult
	batch := s.Client.Decisionmakers(s.Lang, after, before, chunk)
	for batch.Next(ctx) {
		dm := batch.Decisionmaker()
		res.Fetched++
		if err := s.Repo.UpsertDecisionmaker(ctx, dm); err != nil {
			return res, fmt.Errorf("store decisionmaker %s: %w", dm.Organization.Info.ID, err)
		}
		res.Stored++
	}
	if err := batch.Err(); err != nil {
		return res, err
	}
	log.Printf("backfill decisionmakers: %d stored", res.Stored)
	return res, nil
}

// OrganizationTree imports an organization and its descendants,
// depth-first, down to maxDepth levels below the root (maxDepth <= 0
// means the root only). Already-visited ids are skipped so cyclic
// remote data cannot loop the traversal.
func (s *Syncer) OrganizationTree(ctx context.Context, rootID string, maxDepth int) (int, error) {
	if rootID == "" {
		return 0, fmt.Errorf("root organization id is required")
	}
	cache := newLookupCache()
	visited := map[string]bool{}
	stored := 0
	var walk func(id string, depth int) error
	walk = func(id string, depth int) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		org, err := cache.organization(ctx, s.Client, id, s.Lang)
		if err != nil {
			return fmt.Errorf("fetch organization %s: %w", id, err)
		}
		if err := s.Repo.UpsertOrganization(ctx, org); err != nil {
			return fmt.Errorf("store organization %s: %w", id, err)
		}
		stored++
		if depth >= maxDepth {
			return nil
		}
		for _, child := range org.Children {
			if err := walk(child.ID, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rootID, 0); err != nil {
		return stored, err
	}
	log.Printf("organization tree from %s: %d stored", rootID, stored)
	return stored, nil
}

// Compositions refreshes decisionmaker compositions. With no explicit
// ids it covers every decisionmaker already in the local store.
func (s *Syncer) Compositions(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		var err error
		ids, err = s.Repo.ListDecisionmakerIDs(ctx)
		if err != nil {
			return 0, fmt.Errorf("list decisionmakers: %w", err)
		}
	}
	stored := 0
	for _, id := range ids {
		dm, err := s.Client.GetDecisionmaker(ctx, id, s.Lang)
		if err != nil {
			return stored, fmt.Errorf("fetch decisionmaker %s: %w", id, err)
		}
		if err := s.Repo.UpsertDecisionmaker(ctx, dm); err != nil {
			return stored, fmt.Errorf("store decisionmaker %s: %w", id, err)
		}
		stored++
	}
	log.Printf("compositions: %d refreshed", stored)
	return stored, nil
}

// lookupCache memoizes organization fetches within one traversal. Each
// operation builds its own cache; nothing is shared across runs.
type lookupCache struct {
	orgs map[string]domain.Organization
}

func newLookupCache() *lookupCache {
	return &lookupCache{orgs: map[string]domain.Organization{}}
}

func (c *lookupCache) organization(ctx context.Context, client *ahjo.Client, id, lang string) (domain.Organization, error) {
	if org, ok := c.orgs[id]; ok {
		return org, nil
	}
	org, err := client.GetOrganization(ctx, id, lang)
	if err != nil {
		return domain.Organization{}, err
	}
	c.orgs[id] = org
	return org, nil
}
