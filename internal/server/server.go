package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskrank/internal/cardsource"
	"taskrank/internal/domain"
	"taskrank/internal/engine"
	"taskrank/internal/importer"
	"taskrank/internal/logging"
	"taskrank/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *logging.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"import_auth"`
	Message string         `json:"message" example:"invalid credentials"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the taskrank API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Get()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Request validation errors are 400; 422 is reserved for imports with nothing to write.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("taskrank API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerImports(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Debug("request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// importStatus maps import failure kinds to HTTP statuses.
var importStatus = map[importer.Kind]int{
	importer.KindAuth:       http.StatusUnauthorized,
	importer.KindValidation: http.StatusBadGateway,
	importer.KindFetch:      http.StatusBadGateway,
	importer.KindEmpty:      http.StatusUnprocessableEntity,
	importer.KindStore:      http.StatusInternalServerError,
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ie *importer.Error
	if errors.As(err, &ie) {
		status, ok := importStatus[ie.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		details := map[string]any{"kind": string(ie.Kind)}
		if ie.Kind == importer.KindStore {
			details["written"] = ie.Written
		}
		return newAPIError(status, "import_"+string(ie.Kind), ie.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrHistoryDisabled) {
		return newAPIError(http.StatusServiceUnavailable, "history_disabled", err.Error(), nil)
	}
	if errors.Is(err, cardsource.ErrInvalidConfig) || errors.Is(err, cardsource.ErrUnsupported) {
		return newAPIError(http.StatusBadRequest, "bad_source", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
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

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user and pending task counts",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		counts, err := e.Summary(ctx, principal.OwnerID)
		if err != nil {
			return nil, handleError(err)
		}
		pending := map[string]int{}
		for p, n := range counts {
			pending[string(p)] = n
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{OwnerID: principal.OwnerID, Source: principal.Source, Pending: pending}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		Description:   "Priority and score are computed from due date and effort.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			OwnerID:     ownerID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			DueDate:     input.Body.DueDate,
			Effort:      input.Body.Effort,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks, soonest due first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Priority string `query:"priority" doc:"LOW, MEDIUM or HIGH"`
		Status   string `query:"status" doc:"PENDING or COMPLETED"`
		Limit    int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.TaskFilters{OwnerID: ownerID, Limit: input.Limit}
		if input.Priority != "" {
			p, err := domain.ParsePriority(input.Priority)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "priority"})
			}
			f.Priority = p
		}
		if input.Status != "" {
			s, err := domain.ParseStatus(input.Status)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "status"})
			}
			f.Status = s
		}
		tasks, err := e.ListTasks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Items: nonNilTasks(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.GetTask(ctx, ownerID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Mark task completed",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.CompleteTask(ctx, ownerID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, ownerID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerImports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-import",
		Method:      http.MethodPost,
		Path:        "/imports",
		Summary:     "Import cards from a board service",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body ImportRequest `json:"body" required:"false"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Import(ctx, engine.ImportOptions{
			OwnerID:      ownerID,
			Source:       input.Body.Source,
			SkipExisting: input.Body.SkipExisting,
			Atomic:       input.Body.Atomic,
			Restricted:   true,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Result: res}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-history",
		Method:      http.MethodGet,
		Path:        "/imports/history",
		Summary:     "Recent import runs, newest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0" maximum:"100"`
	}) (*struct {
		Body ImportHistoryResponse `json:"body"`
	}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		runs, err := e.ImportHistory(ctx, ownerID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if runs == nil {
			runs = []domain.ImportRun{}
		}
		return &struct {
			Body ImportHistoryResponse `json:"body"`
		}{Body: ImportHistoryResponse{Items: runs}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest task events",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0" maximum:"200"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		ownerID, authErr := ownerIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		evts, err := e.Events(ctx, ownerID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: evts}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
