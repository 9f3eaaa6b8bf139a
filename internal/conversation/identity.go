package conversation

import (
	"context"
	"sync"
)

// ResolveIdentities maps each unique author ID to a human-readable display
// name via users.info. Lookups run concurrently and are best-effort: an ID
// whose lookup fails, or whose profile carries no usable name, maps to
// itself. No retries; total latency is bounded by the slowest lookup.
func ResolveIdentities(ctx context.Context, client SlackClient, authorIDs []string) map[string]string {
	names := make(map[string]string, len(authorIDs))

	unique := make([]string, 0, len(authorIDs))
	for _, id := range authorIDs {
		if id == "" {
			continue
		}
		if _, seen := names[id]; seen {
			continue
		}
		names[id] = id // fallback until a lookup succeeds
		unique = append(unique, id)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range unique {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			user, err := client.GetUserInfoContext(ctx, id)
			if err != nil || user == nil {
				return
			}
			name := user.Profile.DisplayName
			if name == "" {
				name = user.RealName
			}
			if name == "" {
				return
			}
			mu.Lock()
			names[id] = name
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return names
}

// AuthorIDs collects the distinct, non-empty author IDs of a scope in
// first-appearance order.
func AuthorIDs(scope Scope) []string {
	seen := make(map[string]bool, len(scope.Messages))
	var ids []string
	for _, m := range scope.Messages {
		if m.AuthorID == "" || seen[m.AuthorID] {
			continue
		}
		seen[m.AuthorID] = true
		ids = append(ids, m.AuthorID)
	}
	return ids
}
