package app

import (
	"sort"

	"classroom-live-service/internal/domain"
)

// Aggregate groups responses by display name and returns per-participant
// stats ordered by correctCount descending, ties broken by totalAnswered
// descending, then by name for determinism. Responses without a display
// name are attributed to domain.FallbackName.
func Aggregate(responses []domain.Response) []domain.UserStat {
	byName := make(map[string]*domain.UserStat)
	order := make([]string, 0)
	for _, resp := range responses {
		name := resp.DisplayName
		if name == "" {
			name = domain.FallbackName
		}
		stat, ok := byName[name]
		if !ok {
			stat = &domain.UserStat{DisplayName: name}
			byName[name] = stat
			order = append(order, name)
		}
		stat.TotalAnswered++
		if resp.IsCorrect != nil && *resp.IsCorrect {
			stat.CorrectCount++
		}
	}

	stats := make([]domain.UserStat, 0, len(order))
	for _, name := range order {
		stats = append(stats, *byName[name])
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].CorrectCount != stats[j].CorrectCount {
			return stats[i].CorrectCount > stats[j].CorrectCount
		}
		if stats[i].TotalAnswered != stats[j].TotalAnswered {
			return stats[i].TotalAnswered > stats[j].TotalAnswered
		}
		return stats[i].DisplayName < stats[j].DisplayName
	})
	return stats
}

// Respondents returns the distinct responder names in first-seen order,
// applying the same fallback label as Aggregate.
func Respondents(responses []domain.Response) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, resp := range responses {
		name := resp.DisplayName
		if name == "" {
			name = domain.FallbackName
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
