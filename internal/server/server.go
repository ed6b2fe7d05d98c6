package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"ahjosync/internal/domain"
	"ahjosync/internal/queue"
)

// Config for the HTTP notification handler.
type Config struct {
	Queue    *queue.Manager
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string `json:"code" example:"bad_request"`
	Message string `json:"message" example:"id is required"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

// NotificationRequest is the change notification pushed by the remote
// system when a record changes.
type NotificationRequest struct {
	ID         string `json:"id" required:"false" example:"HEL 2024-001234"`
	Type       string `json:"type" required:"false" example:"case"`
	UpdateType string `json:"updatetype" required:"false" example:"Updated"`
}

// NotificationResponse reports the enqueued task.
type NotificationResponse struct {
	TaskID    string `json:"task_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Queue     string `json:"queue"`
}

// New returns an HTTP handler exposing the sync notification API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Ahjo Sync API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerNotifications(group, cfg.Queue)
	registerQueues(group, cfg.Queue)

	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerNotifications(api huma.API, q *queue.Manager) {
	huma.Register(api, huma.Operation{
		OperationID:   "post-notification",
		Method:        http.MethodPost,
		Path:          "/notifications",
		Summary:       "Receive a change notification",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body NotificationRequest `json:"body"`
	}) (*struct {
		Body NotificationResponse `json:"body"`
	}, error) {
		if _, authErr := subjectFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required")
		}
		if input.Body.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type is required")
		}
		payload := domain.TaskPayload{
			EntityID: input.Body.ID,
			Type:     input.Body.Type,
			Change:   input.Body.UpdateType,
			Origin:   domain.OriginNotification,
		}
		taskID, dup, err := q.Enqueue(ctx, domain.QueuePrimary, payload)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
		}
		return &struct {
			Body NotificationResponse `json:"body"`
		}{Body: NotificationResponse{TaskID: taskID, Duplicate: dup, Queue: string(domain.QueuePrimary)}}, nil
	})
}

func registerQueues(api huma.API, q *queue.Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "queue-counts",
		Method:      http.MethodGet,
		Path:        "/queues",
		Summary:     "Queue depths",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		if _, authErr := subjectFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		counts, err := q.Counts(ctx)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
		}
		body := map[string]int{
			string(domain.QueuePrimary): 0,
			string(domain.QueueRetry):   0,
			string(domain.QueueError):   0,
		}
		for queue, n := range counts {
			body[string(queue)] = n
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: body}, nil
	})
}
