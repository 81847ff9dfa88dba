package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"sitework/internal/auth"
	"sitework/internal/brigade"
	"sitework/internal/docstore"
	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Auth     auth.Service
	BasePath string
	JWT      AuthConfig
	Logger   zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"document not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Sitework API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Logger))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.JWT))
	hcfg := huma.DefaultConfig("Sitework API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Auth)
	registerProjects(group, cfg.Engine)
	registerShifts(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerFields(group, cfg.Engine)
	registerBrigades(group, cfg.Engine.Brigades)
	registerManager(group, cfg.Engine)
	registerUsers(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrEmptySelection):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, engine.ErrTooManyConflicts):
		return newAPIError(http.StatusServiceUnavailable, "conflict_retry_exhausted", err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, auth.ErrInactiveUser):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already exists"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "conflict_retry_exhausted"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
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
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	open := map[string]struct{}{}
	for _, p := range []string{"health", "auth/login", "auth/refresh"} {
		full := path.Join(basePath, p)
		if !strings.HasPrefix(full, "/") {
			full = "/" + full
		}
		open[full] = struct{}{}
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if _, ok := open[route]; ok {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Sitework API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
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

func registerAuth(api huma.API, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login with email and password",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body auth.TokenPair `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		pair, err := svc.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body auth.TokenPair `json:"body"`
		}{Body: pair}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Rotate a refresh token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body RefreshRequest `json:"body"`
	}) (*struct {
		Body auth.TokenPair `json:"body"`
	}, error) {
		pair, err := svc.Refresh(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body auth.TokenPair `json:"body"`
		}{Body: pair}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Summary:       "Revoke a refresh session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body RefreshRequest `json:"body"`
	}) (*struct{}, error) {
		if err := svc.Logout(ctx, input.Body.RefreshToken); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current account",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := svc.Repo.GetUser(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		u.Projects, err = svc.Repo.ListUserProjects(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project document",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requireManager(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ProjectID:    input.Body.ProjectID,
			ProjectName:  input.Body.ProjectName,
			ForemanID:    input.Body.ForemanID,
			ForemanEmail: input.Body.ForemanEmail,
			ActorID:      principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List own projects",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ProjectSummary `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProjectSummary `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project document",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/stages",
		Summary:     "List stages of own projects",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []*domain.WorkStage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stages, err := e.ListStages(ctx, engine.Scope{ForemanID: actorID, ProjectID: input.ProjectID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []*domain.WorkStage `json:"body"`
		}{Body: stages}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks of own projects",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []*domain.Task `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.ListTasks(ctx, engine.Scope{ForemanID: actorID, ProjectID: input.ProjectID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []*domain.Task `json:"body"`
		}{Body: tasks}, nil
	})
}

func registerShifts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "start-shift",
		Method:      http.MethodPost,
		Path:        "/shifts/start",
		Summary:     "Start shift on selected tasks",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body ShiftRequest `json:"body"`
	}) (*struct {
		Body ShiftResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		scope := engine.Scope{ForemanID: actorID, ProjectID: input.Body.ProjectID}
		if err := e.StartShift(ctx, scope, input.Body.TaskIDs, input.Body.SubtaskIDs); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShiftResponse `json:"body"`
		}{Body: ShiftResponse{Result: "ok"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-shift",
		Method:      http.MethodPost,
		Path:        "/shifts/stop",
		Summary:     "Stop shift on selected tasks",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body ShiftRequest `json:"body"`
	}) (*struct {
		Body ShiftResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		scope := engine.Scope{ForemanID: actorID, ProjectID: input.Body.ProjectID}
		if err := e.StopShift(ctx, scope, input.Body.TaskIDs, input.Body.SubtaskIDs); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShiftResponse `json:"body"`
		}{Body: ShiftResponse{Result: "ok"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "shift-status",
		Method:      http.MethodGet,
		Path:        "/shifts/status",
		Summary:     "Current shift status",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body ShiftStatusResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		status, err := e.ShiftStatus(ctx, engine.Scope{ForemanID: actorID, ProjectID: input.ProjectID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShiftStatusResponse `json:"body"`
		}{Body: ShiftStatusResponse{Status: status}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "shift-history",
		Method:      http.MethodGet,
		Path:        "/shifts/history",
		Summary:     "Flattened shift history",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []domain.ShiftEntry `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entries, err := e.ShiftHistory(ctx, engine.Scope{ForemanID: actorID, ProjectID: input.ProjectID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ShiftEntry `json:"body"`
		}{Body: entries}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "attach-report-links",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/reports",
		Summary:     "Attach report links to a subtask",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      AttachReportRequest `json:"body"`
	}) (*struct {
		Body engine.OperationResult `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AttachReportLinks(ctx, input.ProjectID, engine.ReportTarget{
			StageID:    input.Body.StageID,
			WorkKindID: input.Body.WorkKindID,
			WorkTypeID: input.Body.WorkTypeID,
			TaskID:     input.Body.TaskID,
			SubtaskID:  input.Body.SubtaskID,
		}, input.Body.Links, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.OperationResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerFields(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-field",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/fields",
		Summary:     "Set a document field by path",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Body      SetFieldRequest `json:"body"`
	}) (*struct {
		Body engine.OperationResult `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var value any
		if len(input.Body.Value) > 0 {
			if err := json.Unmarshal(input.Body.Value, &value); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid value", nil)
			}
		}
		res, err := e.SetField(ctx, input.ProjectID, input.Body.Path, value, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.OperationResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerBrigades(api huma.API, svc brigade.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-brigade",
		Method:        http.MethodPost,
		Path:          "/brigades",
		Summary:       "Create or resolve a brigade by members",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateBrigadeRequest `json:"body"`
	}) (*struct {
		Body domain.Brigade `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := svc.CreateOrGetByMembers(ctx, input.Body.Members, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Brigade `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-brigade",
		Method:      http.MethodGet,
		Path:        "/brigades/{brigade_id}",
		Summary:     "Get brigade",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BrigadeID string `path:"brigade_id"`
	}) (*struct {
		Body domain.Brigade `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		b, err := svc.Get(ctx, input.BrigadeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Brigade `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-brigades",
		Method:      http.MethodGet,
		Path:        "/brigades",
		Summary:     "Search brigades by name or member",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Name   string `query:"name"`
		Member string `query:"member"`
		Size   int    `query:"size"`
	}) (*struct {
		Body []domain.Brigade `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := svc.Search(ctx, input.Name, input.Member, input.Size)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Brigade `json:"body"`
		}{Body: items}, nil
	})
}

func registerManager(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "manager-list-projects",
		Method:      http.MethodGet,
		Path:        "/manager/projects",
		Summary:     "List all projects",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ProjectSummary `json:"body"`
	}, error) {
		if _, authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProjectSummary `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "manager-list-tasks",
		Method:      http.MethodGet,
		Path:        "/manager/tasks",
		Summary:     "List tasks across all projects",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []*domain.Task `json:"body"`
	}, error) {
		if _, authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		tasks, err := e.ListTasks(ctx, engine.Scope{ProjectID: input.ProjectID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []*domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "manager-shift-history",
		Method:      http.MethodGet,
		Path:        "/manager/shifts",
		Summary:     "Shift intervals grouped by foreman",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ForemanShifts `json:"body"`
	}, error) {
		if _, authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.AllShiftHistory(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ForemanShifts `json:"body"`
		}{Body: items}, nil
	})
}

func registerUsers(api huma.API, svc auth.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register an account",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := svc.Register(ctx, input.Body.Email, input.Body.Password, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List accounts",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if _, authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		users, err := svc.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]UserResponse, 0, len(users))
		for _, u := range users {
			out = append(out, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{user_id}",
		Summary:     "Update account role or active flag",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Body   struct {
			Active *bool   `json:"active,omitempty"`
			Role   *string `json:"role,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if _, authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Active != nil {
			if err := svc.Repo.SetUserActive(ctx, input.UserID, *input.Body.Active); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Role != nil {
			if err := svc.Repo.SetUserRole(ctx, input.UserID, *input.Body.Role); err != nil {
				return nil, handleError(err)
			}
		}
		u, err := svc.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-project",
		Method:        http.MethodPut,
		Path:          "/users/{user_id}/projects/{project_id}",
		Summary:       "Grant a user access to a project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID    string `path:"user_id"`
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if _, authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		if err := svc.Repo.AssignProject(ctx, input.UserID, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-project",
		Method:        http.MethodDelete,
		Path:          "/users/{user_id}/projects/{project_id}",
		Summary:       "Revoke a user's project access",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID    string `path:"user_id"`
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if _, authErr := requireManager(ctx); authErr != nil {
			return nil, authErr
		}
		if err := svc.Repo.RevokeProject(ctx, input.UserID, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
