/**
 * @description
 * Statistics aggregation over the transaction ledger. ComputeStatistics is a
 * pure function of the record list and the reference clock so it can be tested
 * without a database.
 *
 * @notes
 * - The today count is a calendar-day comparison in a fixed configured zone,
 *   never the host locale; the deployment default is Asia/Dhaka, where the
 *   payment providers operate.
 * - The service distribution counts COMPLETED records only, grouped
 *   case-insensitively, descending by count with ties broken by first-seen
 *   service name.
 */

package app

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smswatch/ledger-service/internal/domain"
)

// DefaultRecentLimit caps the recent-transactions view unless configured
// otherwise. Matches the original dashboard page size.
const DefaultRecentLimit = 20

// ComputeStatistics derives the read-only summary from the full ledger.
// records are expected newest-first as returned by the store; the function
// re-sorts defensively so callers feeding unsorted slices (tests, future
// stores) still get a correct recent view.
func ComputeStatistics(records []domain.Transaction, now time.Time, loc *time.Location, recentLimit int) *domain.StatisticsSnapshot {
	if loc == nil {
		loc = time.UTC
	}
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}

	sorted := make([]domain.Transaction, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	snapshot := &domain.StatisticsSnapshot{
		TotalCount:           len(sorted),
		TotalCompletedAmount: decimal.Zero,
		GeneratedAt:          now.UTC(),
	}

	todayYear, todayMonth, todayDay := now.In(loc).Date()

	type distEntry struct {
		name  string
		count int
		seen  int
	}
	dist := make(map[string]*distEntry)
	order := 0

	// Walk oldest-first so "first seen" in the distribution tie-break means
	// first arrival in the ledger.
	for i := len(sorted) - 1; i >= 0; i-- {
		tx := sorted[i]
		y, m, d := tx.CreatedAt.In(loc).Date()
		if y == todayYear && m == todayMonth && d == todayDay {
			snapshot.TodayCount++
		}

		switch tx.Status {
		case domain.StatusPending:
			snapshot.PendingCount++
		case domain.StatusCompleted:
			snapshot.CompletedCount++
			snapshot.TotalCompletedAmount = snapshot.TotalCompletedAmount.Add(tx.AmountCanonical)

			key := strings.ToLower(tx.ServiceType)
			entry, ok := dist[key]
			if !ok {
				entry = &distEntry{name: tx.ServiceType, seen: order}
				order++
				dist[key] = entry
			}
			entry.count++
		}
	}

	entries := make([]*distEntry, 0, len(dist))
	for _, e := range dist {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].seen < entries[j].seen
	})
	snapshot.ServiceDistribution = make([]domain.ServiceCount, 0, len(entries))
	for _, e := range entries {
		snapshot.ServiceDistribution = append(snapshot.ServiceDistribution, domain.ServiceCount{
			ServiceType: e.name,
			Count:       e.count,
		})
	}

	if len(sorted) > recentLimit {
		sorted = sorted[:recentLimit]
	}
	snapshot.RecentTransactions = sorted

	return snapshot
}
