package selection

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"tip-dispatcher/internal/domain"
)

// Service выбирает очередную пачку советов для канала.
type Service struct {
	assignments domain.AssignmentRepo
	history     domain.HistoryRepo
}

// NewService создаёт сервис выбора.
func NewService(assignments domain.AssignmentRepo, history domain.HistoryRepo) *Service {
	return &Service{assignments: assignments, history: history}
}

// TakeTips возвращает до count советов канала, избегая недавно отправленных.
//
// Глубина истории равна размеру пула: совет не повторяется, пока не разошёлся
// весь пул. Если свежих советов не хватает, недостающее добирается из пула
// по возрастанию id, уже с повторами. Советы и назначения соответствуют друг
// другу по индексу.
func (s *Service) TakeTips(ctx context.Context, channelID int64, count int) ([]domain.Tip, []domain.Assignment, error) {
	if count <= 0 {
		return nil, nil, nil
	}
	assigns, err := s.assignments.ListEligible(ctx, channelID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: назначения канала %d: %w", domain.ErrStorage, channelID, err)
	}
	eligible := make([]domain.Assignment, 0, len(assigns))
	for _, a := range assigns {
		if a.Tip.Enabled {
			eligible = append(eligible, a)
		}
	}
	slices.SortStableFunc(eligible, func(a, b domain.Assignment) int { return cmp.Compare(a.ID, b.ID) })
	if len(eligible) == 0 {
		return nil, nil, nil
	}
	logs, err := s.history.RecentLogs(ctx, channelID, len(eligible))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: история канала %d: %w", domain.ErrStorage, channelID, err)
	}
	recent := make(map[int64]struct{}, len(logs))
	for _, l := range logs {
		recent[l.AssignmentID] = struct{}{}
	}

	chosen := Pick(eligible, recent, count)
	tips := make([]domain.Tip, 0, len(chosen))
	for _, a := range chosen {
		tips = append(tips, a.Tip)
	}
	return tips, chosen, nil
}

// Pick выбирает назначения из пула, упорядоченного по возрастанию id.
func Pick(eligible []domain.Assignment, recent map[int64]struct{}, count int) []domain.Assignment {
	if count <= 0 || len(eligible) == 0 {
		return nil
	}
	chosen := make([]domain.Assignment, 0, min(count, len(eligible)))
	taken := make(map[int64]struct{}, count)
	for _, a := range eligible {
		if len(chosen) == count {
			break
		}
		if _, ok := recent[a.ID]; ok {
			continue
		}
		chosen = append(chosen, a)
		taken[a.ID] = struct{}{}
	}
	for _, a := range eligible {
		if len(chosen) == count {
			break
		}
		if _, ok := taken[a.ID]; ok {
			continue
		}
		chosen = append(chosen, a)
		taken[a.ID] = struct{}{}
	}
	return chosen
}
