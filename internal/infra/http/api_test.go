package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"tip-dispatcher/internal/domain"
	"tip-dispatcher/internal/infra/queue"
	"tip-dispatcher/internal/usecase/jobs"
)

type stubRunner struct {
	out   domain.Outcome
	err   error
	calls int
}

func (s *stubRunner) Run(_ context.Context, id int64, cause domain.JobCause) (domain.Outcome, error) {
	s.calls++
	out := s.out
	out.DistributorID = id
	return out, s.err
}

type stubPreview struct {
	count int
	err   error
}

func (s *stubPreview) TakeTips(_ context.Context, channelID int64, count int) ([]domain.Tip, []domain.Assignment, error) {
	s.count = count
	if s.err != nil {
		return nil, nil, s.err
	}
	tip := domain.Tip{ID: 11, Title: "Тесты", Text: "Пишите тесты", Enabled: true}
	return []domain.Tip{tip}, []domain.Assignment{{ID: 4, ChannelID: channelID, TipID: tip.ID}}, nil
}

type stubChannels struct {
	domain.ChannelRepo
	known map[int64]bool
}

func (s stubChannels) GetChannel(_ context.Context, id int64) (domain.Channel, error) {
	if !s.known[id] {
		return domain.Channel{}, domain.ErrNotFound
	}
	return domain.Channel{ID: id, Name: "dev"}, nil
}

func newTestRouter(runner Runner, q domain.DistributeQueue, preview Previewer) http.Handler {
	srv := NewServer(zerolog.Nop())
	NewAPI(runner, q, preview, stubChannels{known: map[int64]bool{1: true}}, zerolog.Nop()).Mount(srv.Router, "secret")
	return srv.Router
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestRouter(&stubRunner{}, nil, &stubPreview{}), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("неожиданный ответ: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDistributeRequiresToken(t *testing.T) {
	runner := &stubRunner{}
	h := newTestRouter(runner, nil, &stubPreview{})
	for _, token := range []string{"", "wrong"} {
		rec := do(t, h, http.MethodPost, "/api/v1/distributors/5/distribute", token)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("токен %q: ожидали 401, получили %d", token, rec.Code)
		}
	}
	if runner.calls != 0 {
		t.Fatal("без токена запуск не выполняется")
	}
}

func TestDistributeEmptyTokenClosesRoute(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	NewAPI(&stubRunner{}, nil, &stubPreview{}, nil, zerolog.Nop()).Mount(srv.Router, "")
	rec := do(t, srv.Router, http.MethodPost, "/api/v1/distributors/5/distribute", "anything")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("ожидали 403, получили %d", rec.Code)
	}
}

func TestDistributeStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "ok", want: http.StatusOK},
		{name: "not found", err: domain.ErrNotFound, want: http.StatusNotFound},
		{name: "busy", err: jobs.ErrBusy, want: http.StatusConflict},
		{name: "configuration", err: fmt.Errorf("%w: webhook_url", domain.ErrConfiguration), want: http.StatusUnprocessableEntity},
		{name: "dispatch", err: fmt.Errorf("%w: Webhook: 502", domain.ErrDispatch), want: http.StatusBadGateway},
		{name: "storage", err: fmt.Errorf("%w: disk full", domain.ErrStorage), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{
				out: domain.Outcome{
					State:       domain.StateLogged,
					Type:        domain.DistributorWebhook,
					Dispatched:  tt.err == nil,
					Assignments: []domain.Assignment{{ID: 4}},
					Tips:        []domain.Tip{{ID: 11}},
				},
				err: tt.err,
			}
			rec := do(t, newTestRouter(runner, nil, &stubPreview{}), http.MethodPost, "/api/v1/distributors/5/distribute", "secret")
			if rec.Code != tt.want {
				t.Fatalf("ожидали %d, получили %d", tt.want, rec.Code)
			}
			var resp OutcomeResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("некорректный JSON: %v", err)
			}
			if resp.DistributorID != 5 || len(resp.AssignmentIDs) != 1 || resp.AssignmentIDs[0] != 4 {
				t.Fatalf("неожиданный ответ: %+v", resp)
			}
			if (tt.err != nil) != (resp.Error != "") {
				t.Fatalf("ошибка в ответе не соответствует: %+v", resp)
			}
		})
	}
}

func TestDistributeQueued(t *testing.T) {
	q := queue.NewMemoryDistributeQueue(1)
	runner := &stubRunner{}
	rec := do(t, newTestRouter(runner, q, &stubPreview{}), http.MethodPost, "/api/v1/distributors/7/distribute", "secret")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d", rec.Code)
	}
	job, ack, err := q.Receive(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	_ = ack(true)
	if job.DistributorID != 7 || job.Cause != domain.JobCauseManual {
		t.Fatalf("неожиданная задача: %+v", job)
	}
	if runner.calls != 0 {
		t.Fatal("в режиме очереди запуск не выполняется синхронно")
	}
}

func TestDistributeBadID(t *testing.T) {
	rec := do(t, newTestRouter(&stubRunner{}, nil, &stubPreview{}), http.MethodPost, "/api/v1/distributors/abc/distribute", "secret")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	preview := &stubPreview{}
	h := newTestRouter(&stubRunner{}, nil, preview)

	rec := do(t, h, http.MethodGet, "/api/v1/channels/1/preview?count=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	var resp PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("некорректный JSON: %v", err)
	}
	if preview.count != 2 || resp.ChannelID != 1 || len(resp.Tips) != 1 || resp.Tips[0].Title != "Тесты" {
		t.Fatalf("неожиданный ответ: %+v", resp)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/channels/1/preview", ""); rec.Code != http.StatusOK || preview.count != DefaultPreviewCount {
		t.Fatalf("ожидали размер по умолчанию, получили %d/%d", rec.Code, preview.count)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/channels/1/preview?count=0", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/channels/2/preview", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
}

func TestPreviewStorageError(t *testing.T) {
	h := newTestRouter(&stubRunner{}, nil, &stubPreview{err: errors.New("timeout")})
	if rec := do(t, h, http.MethodGet, "/api/v1/channels/1/preview", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("ожидали 500, получили %d", rec.Code)
	}
}
