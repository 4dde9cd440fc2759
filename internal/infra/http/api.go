package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/usecase/jobs"
)

// Runner запускает распространителя вручную.
type Runner interface {
	Run(ctx context.Context, id int64, cause domain.JobCause) (domain.Outcome, error)
}

// Previewer выбирает советы без записи в журнал.
type Previewer interface {
	TakeTips(ctx context.Context, channelID int64, count int) ([]domain.Tip, []domain.Assignment, error)
}

// DefaultPreviewCount размер предпросмотра без параметра count.
const DefaultPreviewCount = 3

const maxPreviewCount = 100

// API обработчики операционных маршрутов.
type API struct {
	runner   Runner
	queue    domain.DistributeQueue
	preview  Previewer
	channels domain.ChannelRepo
	log      zerolog.Logger
}

// NewAPI создаёт обработчики. Если queue задана, ручной запуск ставится в очередь.
func NewAPI(runner Runner, queue domain.DistributeQueue, preview Previewer, channels domain.ChannelRepo, logger zerolog.Logger) *API {
	return &API{runner: runner, queue: queue, preview: preview, channels: channels, log: logger}
}

// Mount регистрирует маршруты /api/v1. Запуск рассылки закрыт токеном.
func (a *API) Mount(r chi.Router, token string) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/channels/{id}/preview", a.handlePreview)
		r.Group(func(protected chi.Router) {
			protected.Use(TokenAuthMiddleware(token))
			protected.Post("/distributors/{id}/distribute", a.handleDistribute)
		})
	})
}

// TipResponse совет в ответах API.
type TipResponse struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// OutcomeResponse результат ручного запуска.
type OutcomeResponse struct {
	DistributorID int64   `json:"distributor_id"`
	ChannelID     int64   `json:"channel_id"`
	Type          string  `json:"type"`
	State         string  `json:"state"`
	Dispatched    bool    `json:"dispatched"`
	AssignmentIDs []int64 `json:"assignment_ids"`
	TipIDs        []int64 `json:"tip_ids"`
	DurationMS    int64   `json:"duration_ms"`
	Error         string  `json:"error,omitempty"`
}

// PreviewResponse выборка советов канала без записи в журнал.
type PreviewResponse struct {
	ChannelID     int64         `json:"channel_id"`
	Tips          []TipResponse `json:"tips"`
	AssignmentIDs []int64       `json:"assignment_ids"`
}

func (a *API) handleDistribute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if a.queue != nil {
		job := domain.DistributeJob{DistributorID: id, RequestedAt: time.Now().UTC(), Cause: domain.JobCauseManual}
		if err := a.queue.Enqueue(r.Context(), job); err != nil {
			a.log.Error().Err(err).Int64("distributor", id).Msg("api: не удалось поставить задачу")
			writeError(w, http.StatusServiceUnavailable, "очередь недоступна")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "distributor_id": id})
		return
	}

	out, err := a.runner.Run(r.Context(), id, domain.JobCauseManual)
	resp := OutcomeResponse{
		DistributorID: id,
		ChannelID:     out.ChannelID,
		Type:          string(out.Type),
		State:         string(out.State),
		Dispatched:    out.Dispatched,
		AssignmentIDs: out.AssignmentIDs(),
		TipIDs:        out.TipIDs(),
		DurationMS:    out.Duration.Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, distributeStatus(err), resp)
}

func distributeStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDispatch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	count := DefaultPreviewCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPreviewCount {
			writeError(w, http.StatusBadRequest, "count должен быть от 1 до 100")
			return
		}
		count = n
	}
	if a.channels != nil {
		if _, err := a.channels.GetChannel(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "канал не найден")
				return
			}
			a.log.Error().Err(err).Int64("channel", id).Msg("api: не удалось получить канал")
			writeError(w, http.StatusInternalServerError, "ошибка хранилища")
			return
		}
	}
	tips, assigns, err := a.preview.TakeTips(r.Context(), id, count)
	if err != nil {
		a.log.Error().Err(err).Int64("channel", id).Msg("api: ошибка предпросмотра")
		writeError(w, http.StatusInternalServerError, "ошибка хранилища")
		return
	}
	resp := PreviewResponse{ChannelID: id, Tips: make([]TipResponse, 0, len(tips)), AssignmentIDs: make([]int64, 0, len(assigns))}
	for _, t := range tips {
		resp.Tips = append(resp.Tips, TipResponse{ID: t.ID, Title: t.Title, Text: t.Text})
	}
	for _, as := range assigns {
		resp.AssignmentIDs = append(resp.AssignmentIDs, as.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "некорректный id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
