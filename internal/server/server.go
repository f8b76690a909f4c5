package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"protodesk/internal/domain"
	"protodesk/internal/engine"
	"protodesk/internal/repo"
)

const defaultMaxUploadBytes = 32 << 20

// Config for the HTTP API handler.
type Config struct {
	Engine         engine.Engine
	BasePath       string
	Auth           AuthConfig
	Logger         *zap.Logger
	MaxUploadBytes int64
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid status transition 4 -> 1: status \"Completed\" is terminal"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":4,\"to\":1}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type out[T any] struct {
	Body T
}

func reply[T any](v T) *out[T] { return &out[T]{Body: v} }

type idPath struct {
	ID int64 `path:"id"`
}

// New returns an HTTP handler exposing the protodesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
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
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("protodesk API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerStatuses(group, cfg.Engine)
	registerBranches(group, cfg.Engine)
	registerCustomers(group, cfg.Engine)
	registerPersonnel(group, cfg.Engine)
	registerProtocols(group, cfg.Engine)
	registerProtocolEvents(group, cfg.Engine, maxUpload)
	registerAttachmentContent(router, basePath, cfg.Engine)
	registerReminders(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		var details map[string]any
		if verr.Field != "" {
			details = map[string]any{"field": verr.Field}
		}
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), details)
	}
	var terr *domain.TransitionError
	if errors.As(err, &terr) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": terr.From, "to": terr.To})
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case errors.Is(err, domain.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, domain.ErrStorage):
		return newAPIError(http.StatusServiceUnavailable, "storage_error", "storage unavailable", map[string]any{"error": err.Error()})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "storage_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				logger.Warn("request", fields...)
				return
			}
			logger.Info("request", fields...)
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
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
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
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
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
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
    <title>protodesk API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
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
	}, func(ctx context.Context, _ *struct{}) (*out[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*out[WhoAmIResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return reply(WhoAmIResponse{ActorID: p.ActorID, Source: p.Source}), nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest
	}) (*out[DevLoginResponse], error) {
		if input.Body.ActorID <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, input.Body.ActorID, 24*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(DevLoginResponse{Token: token}), nil
	})
}

func registerStatuses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses",
		Summary:     "List protocol statuses",
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Status], error) {
		return reply(e.Statuses.List()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "status-counts",
		Method:      http.MethodGet,
		Path:        "/statuses/counts",
		Summary:     "Protocol counts per status",
	}, func(ctx context.Context, _ *struct{}) (*out[[]StatusCountResponse], error) {
		counts, err := e.StatusCounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := []StatusCountResponse{}
		for _, s := range e.Statuses.List() {
			items = append(items, StatusCountResponse{StatusID: s.ID, StatusName: s.Name, IsTerminal: s.IsTerminal, Count: counts[s.ID]})
		}
		return reply(items), nil
	})
}

func registerBranches(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-branch",
		Method:        http.MethodPost,
		Path:          "/branches",
		Summary:       "Create branch",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body BranchRequest
	}) (*out[domain.Branch], error) {
		b, err := e.CreateBranch(ctx, engine.BranchOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-branches",
		Method:      http.MethodGet,
		Path:        "/branches",
		Summary:     "List branches",
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Branch], error) {
		items, err := e.ListBranches(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-branch",
		Method:      http.MethodGet,
		Path:        "/branches/{id}",
		Summary:     "Get branch",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[domain.Branch], error) {
		b, err := e.GetBranch(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-branch",
		Method:      http.MethodPut,
		Path:        "/branches/{id}",
		Summary:     "Update branch",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body BranchRequest
	}) (*out[domain.Branch], error) {
		b, err := e.UpdateBranch(ctx, input.ID, engine.BranchOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(b), nil
	})
}

func customerOptions(r CustomerRequest) engine.CustomerOptions {
	return engine.CustomerOptions{
		FirstName: r.FirstName, LastName: r.LastName, Email: r.Email, Phone: r.Phone,
		Address: r.Address, City: r.City, State: r.State, PostalCode: r.PostalCode,
		BranchID: r.BranchID, Active: r.Active,
	}
}

func registerCustomers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-customer",
		Method:        http.MethodPost,
		Path:          "/customers",
		Summary:       "Create customer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CustomerRequest
	}) (*out[domain.Customer], error) {
		c, err := e.CreateCustomer(ctx, customerOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-customers",
		Method:      http.MethodGet,
		Path:        "/customers",
		Summary:     "List customers",
	}, func(ctx context.Context, input *struct {
		BranchID int64 `query:"branch_id"`
	}) (*out[[]domain.Customer], error) {
		var branch *int64
		if input.BranchID > 0 {
			branch = &input.BranchID
		}
		items, err := e.ListCustomers(ctx, branch)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-customer",
		Method:      http.MethodGet,
		Path:        "/customers/{id}",
		Summary:     "Get customer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[domain.Customer], error) {
		c, err := e.GetCustomer(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-customer",
		Method:      http.MethodPut,
		Path:        "/customers/{id}",
		Summary:     "Update customer",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body CustomerRequest
	}) (*out[domain.Customer], error) {
		c, err := e.UpdateCustomer(ctx, input.ID, customerOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})
}

func registerPersonnel(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-personnel",
		Method:        http.MethodPost,
		Path:          "/personnel",
		Summary:       "Create personnel",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PersonnelRequest
	}) (*out[domain.Personnel], error) {
		p, err := e.CreatePersonnel(ctx, engine.PersonnelOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-personnel",
		Method:      http.MethodGet,
		Path:        "/personnel",
		Summary:     "List personnel",
	}, func(ctx context.Context, input *struct {
		Active bool `query:"active"`
	}) (*out[[]domain.Personnel], error) {
		items, err := e.ListPersonnel(ctx, input.Active)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-personnel",
		Method:      http.MethodGet,
		Path:        "/personnel/{id}",
		Summary:     "Get personnel",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[domain.Personnel], error) {
		p, err := e.GetPersonnel(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-personnel",
		Method:      http.MethodPut,
		Path:        "/personnel/{id}",
		Summary:     "Update personnel",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body PersonnelRequest
	}) (*out[domain.Personnel], error) {
		p, err := e.UpdatePersonnel(ctx, input.ID, engine.PersonnelOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})
}

func registerProtocols(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-protocol",
		Method:        http.MethodPost,
		Path:          "/protocols",
		Summary:       "Create protocol",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateProtocolRequest
	}) (*out[domain.Protocol], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProtocol(ctx, engine.ProtocolCreateOptions{
			Title:              input.Body.Title,
			Description:        input.Body.Description,
			CustomerID:         input.Body.CustomerID,
			AssignedTo:         input.Body.AssignedTo,
			StatusID:           input.Body.StatusID,
			Priority:           input.Body.Priority,
			DateRequired:       input.Body.DateRequired,
			ExpectedCompletion: input.Body.ExpectedCompletion,
			ActorID:            actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-protocols",
		Method:      http.MethodGet,
		Path:        "/protocols",
		Summary:     "List protocols, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StatusID   int64  `query:"status_id"`
		CustomerID int64  `query:"customer_id"`
		AssignedTo int64  `query:"assigned_to"`
		Open       bool   `query:"open"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*out[paginatedProtocols], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListProtocols(ctx, repo.ProtocolFilters{
			StatusID:   input.StatusID,
			CustomerID: input.CustomerID,
			AssignedTo: input.AssignedTo,
			OpenOnly:   input.Open,
			Page:       repo.Page{Limit: limit + 1, AfterID: cursorID},
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedProtocols{Items: []domain.Protocol{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = append(resp.Items, items...)
		return reply(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-protocol",
		Method:      http.MethodGet,
		Path:        "/protocols/{id}",
		Summary:     "Get protocol",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[domain.Protocol], error) {
		p, err := e.GetProtocol(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-protocol",
		Method:      http.MethodPatch,
		Path:        "/protocols/{id}",
		Summary:     "Edit protocol fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body UpdateProtocolRequest
	}) (*out[domain.Protocol], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProtocol(ctx, engine.ProtocolUpdateOptions{
			ID:                 input.ID,
			Title:              input.Body.Title,
			Description:        input.Body.Description,
			AssignedTo:         input.Body.AssignedTo,
			Priority:           input.Body.Priority,
			DateRequired:       input.Body.DateRequired,
			ExpectedCompletion: input.Body.ExpectedCompletion,
			ClearDates:         input.Body.ClearDates,
			ActorID:            actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-protocol",
		Method:        http.MethodDelete,
		Path:          "/protocols/{id}",
		Summary:       "Delete a protocol without recorded history",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProtocol(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProtocolEvents(api huma.API, e engine.Engine, maxUpload int64) {
	huma.Register(api, huma.Operation{
		OperationID:   "change-status",
		Method:        http.MethodPost,
		Path:          "/protocols/{id}/status",
		Summary:       "Change protocol status",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body ChangeStatusRequest
	}) (*out[EventResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		evt, err := e.ChangeStatus(ctx, input.ID, input.Body.StatusID, actorID, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(eventResponse(evt)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/protocols/{id}/comments",
		Summary:       "Add comment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body AddCommentRequest
	}) (*out[EventResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, input.ID, actorID, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(eventResponse(c)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-attachment",
		Method:        http.MethodPost,
		Path:          "/protocols/{id}/attachments",
		Summary:       "Record metadata of an already stored file",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body AddAttachmentRequest
	}) (*out[EventResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddAttachment(ctx, input.ID, actorID, domain.AttachmentDescriptor(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(eventResponse(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "upload-attachment",
		Method:        http.MethodPost,
		Path:          "/protocols/{id}/attachments/upload",
		Summary:       "Upload file bytes and record the attachment",
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  maxUpload,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID          int64  `path:"id"`
		FileName    string `header:"X-File-Name" required:"true"`
		ContentType string `header:"Content-Type"`
		Description string `query:"description"`
		RawBody     []byte
	}) (*out[EventResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UploadAttachment(ctx, input.ID, actorID, input.FileName, input.ContentType, input.Description, bytes.NewReader(input.RawBody))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(eventResponse(a)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/protocols/{id}/events",
		Summary:     "Raw event log in append order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[[]EventResponse], error) {
		evts, err := e.EventLog(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]EventResponse, 0, len(evts))
		for _, evt := range evts {
			items = append(items, eventResponse(evt))
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "timeline",
		Method:      http.MethodGet,
		Path:        "/protocols/{id}/timeline",
		Summary:     "Merged timeline, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[TimelineResponse], error) {
		items, err := e.Timeline(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(TimelineResponse{ProtocolID: input.ID, Items: nonNil(items)}), nil
	})
}

// registerAttachmentContent streams stored bytes; it sits on the router because the
// response is not JSON.
func registerAttachmentContent(r chi.Router, basePath string, e engine.Engine) {
	r.Get(path.Join(basePath, "/protocols/{id}/attachments/{attachment_id}/content"), func(w http.ResponseWriter, req *http.Request) {
		protocolID, err1 := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		attachmentID, err2 := strconv.ParseInt(chi.URLParam(req, "attachment_id"), 10, 64)
		if err1 != nil || err2 != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid id", nil))
			return
		}
		a, rc, err := e.OpenAttachment(req.Context(), protocolID, attachmentID)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer rc.Close()
		ctype := a.ContentType
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ctype)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.FileName))
		if st, ok := rc.(interface{ Stat() (os.FileInfo, error) }); ok {
			if fi, err := st.Stat(); err == nil {
				w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
			}
		}
		io.Copy(w, rc)
	})
}

func registerReminders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reminder",
		Method:        http.MethodPost,
		Path:          "/protocols/{id}/reminders",
		Summary:       "Create reminder",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body CreateReminderRequest
	}) (*out[domain.Reminder], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rm, err := e.CreateReminder(ctx, engine.ReminderOptions{
			ProtocolID:   input.ID,
			Text:         input.Body.Text,
			Message:      input.Body.Message,
			ReminderDate: input.Body.ReminderDate,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(rm), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reminders",
		Method:      http.MethodGet,
		Path:        "/protocols/{id}/reminders",
		Summary:     "List reminders of a protocol",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[[]domain.Reminder], error) {
		items, err := e.ListReminders(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upcoming-reminders",
		Method:      http.MethodGet,
		Path:        "/reminders/upcoming",
		Summary:     "Open reminders due within the next hours",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Hours int `query:"hours" default:"24"`
	}) (*out[[]domain.Reminder], error) {
		items, err := e.UpcomingReminders(ctx, time.Duration(input.Hours)*time.Hour)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-reminder",
		Method:      http.MethodPost,
		Path:        "/reminders/{id}/complete",
		Summary:     "Mark reminder completed",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*out[domain.Reminder], error) {
		rm, err := e.CompleteReminder(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(rm), nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key for the calling actor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name string `json:"name,omitempty"`
		}
	}) (*out[APIKeyResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, secret, err := e.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(apiKeyResponse(key, secret)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys of the calling actor",
	}, func(ctx context.Context, _ *struct{}) (*out[[]APIKeyResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		items := []APIKeyResponse{}
		for _, k := range keys {
			items = append(items, apiKeyResponse(k, ""))
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := e.RevokeAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
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
