package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"deltashare/internal/crawler"
	"deltashare/internal/domain"
	"deltashare/internal/middleware"
	"deltashare/internal/sharing"
	"deltashare/internal/storage"
)

// DeltaTableVersionHeader carries the resolved table version on metadata,
// query, and changes responses.
const DeltaTableVersionHeader = "Delta-Table-Version"

// Options tune the cross-cutting middleware of the router.
type Options struct {
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
}

// Handler wires the protocol service, the crawler, and the synthetic file
// endpoint into one router.
type Handler struct {
	sharing   *sharing.Service
	crawler   *crawler.Crawler
	synthetic *storage.SyntheticBackend
	logger    *slog.Logger
}

// NewHandler builds the HTTP surface. The synthetic backend may be nil
// when another backend is active.
func NewHandler(svc *sharing.Service, c *crawler.Crawler, synthetic *storage.SyntheticBackend, logger *slog.Logger) *Handler {
	return &Handler{
		sharing:   svc,
		crawler:   c,
		synthetic: synthetic,
		logger:    logger.With("component", "api"),
	}
}

// Routes assembles the chi router with the ambient middleware stack.
func (h *Handler) Routes(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if opts.RateLimit > 0 {
		r.Use(middleware.RateLimit(opts.RateLimit, opts.RateBurst))
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
			AllowedHeaders: []string{"*"},
		}))
	}

	r.Route("/delta-sharing", func(r chi.Router) {
		r.Get("/shares", h.listShares)
		r.Get("/shares/{share}", h.getShare)
		r.Get("/shares/{share}/schemas", h.listSchemas)
		r.Get("/shares/{share}/all-tables", h.listAllTables)
		r.Get("/shares/{share}/schemas/{schema}/tables", h.listTables)
		r.Get("/shares/{share}/schemas/{schema}/tables/{table}/version", h.tableVersion)
		r.Get("/shares/{share}/schemas/{schema}/tables/{table}/metadata", h.tableMetadata)
		r.Post("/shares/{share}/schemas/{schema}/tables/{table}/query", h.tableQuery)
		r.Get("/shares/{share}/schemas/{schema}/tables/{table}/changes", h.tableChanges)
	})

	r.Get("/synthetic-files/{file}", h.syntheticFile)

	r.Route("/api/crawler", func(r chi.Router) {
		r.Post("/trigger", h.crawlerTrigger)
		r.Get("/status", h.crawlerStatus)
		r.Get("/executions", h.crawlerExecutions)
	})

	return r
}

func advertiseCapabilities(w http.ResponseWriter) {
	w.Header().Set(sharing.CapabilitiesHeader, sharing.AdvertisedCapabilities)
}

func pageRequest(r *http.Request) domain.PageRequest {
	page := domain.PageRequest{PageToken: r.URL.Query().Get("pageToken")}
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page.MaxResults = n
		}
	}
	return page
}

func capabilitiesFrom(r *http.Request) sharing.Capabilities {
	return sharing.ParseCapabilities(
		r.Header.Get(sharing.CapabilitiesHeader),
		r.Header.Get(sharing.EndStreamActionHeader),
		r.URL.Query().Get("responseFormat"))
}

type shareItem struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type schemaItem struct {
	Name  string `json:"name"`
	Share string `json:"share"`
}

type tableItem struct {
	Name        string `json:"name"`
	Schema      string `json:"schema"`
	Share       string `json:"share"`
	ID          string `json:"id,omitempty"`
	ShareAsView bool   `json:"shareAsView,omitempty"`
}

type listResponse[T any] struct {
	Items         []T     `json:"items"`
	NextPageToken *string `json:"nextPageToken,omitempty"`
}

func nextToken(token string) *string {
	if token == "" {
		return nil
	}
	return &token
}

func (h *Handler) listShares(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)
	shares, next, err := h.sharing.ListShares(r.Context(), pageRequest(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]shareItem, 0, len(shares))
	for _, s := range shares {
		items = append(items, shareItem{Name: s.Name, ID: s.PublicID})
	}
	writeJSON(w, http.StatusOK, listResponse[shareItem]{Items: items, NextPageToken: nextToken(next)})
}

func (h *Handler) getShare(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)
	share, err := h.sharing.GetShare(r.Context(), chi.URLParam(r, "share"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"share": shareItem{Name: share.Name, ID: share.PublicID},
	})
}

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)
	schemas, next, err := h.sharing.ListSchemas(r.Context(), chi.URLParam(r, "share"), pageRequest(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]schemaItem, 0, len(schemas))
	for _, s := range schemas {
		items = append(items, schemaItem{Name: s.Name, Share: s.ShareName})
	}
	writeJSON(w, http.StatusOK, listResponse[schemaItem]{Items: items, NextPageToken: nextToken(next)})
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)
	tables, next, err := h.sharing.ListTables(r.Context(),
		chi.URLParam(r, "share"), chi.URLParam(r, "schema"), pageRequest(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[tableItem]{Items: tableItems(tables), NextPageToken: nextToken(next)})
}

func (h *Handler) listAllTables(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)
	tables, next, err := h.sharing.ListAllTables(r.Context(), chi.URLParam(r, "share"), pageRequest(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[tableItem]{Items: tableItems(tables), NextPageToken: nextToken(next)})
}

func tableItems(tables []domain.Table) []tableItem {
	items := make([]tableItem, 0, len(tables))
	for _, t := range tables {
		items = append(items, tableItem{
			Name: t.Name, Schema: t.SchemaName, Share: t.ShareName,
			ID: t.PublicID, ShareAsView: t.ShareAsView,
		})
	}
	return items
}

func (h *Handler) tableVersion(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)
	version, err := h.sharing.Version(r.Context(),
		chi.URLParam(r, "share"), chi.URLParam(r, "schema"), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set(DeltaTableVersionHeader, strconv.FormatInt(version, 10))
	writeJSON(w, http.StatusOK, map[string]int64{"deltaTableVersion": version})
}

func (h *Handler) tableMetadata(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)
	resp, err := h.sharing.Metadata(r.Context(),
		chi.URLParam(r, "share"), chi.URLParam(r, "schema"), chi.URLParam(r, "table"),
		capabilitiesFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeNDJSON(w, resp)
}

// queryBody is the optional POST body of a table query.
type queryBody struct {
	PredicateHints []string `json:"predicateHints"`
	LimitHint      *int64   `json:"limitHint"`
	Version        *int64   `json:"version"`
}

func (h *Handler) tableQuery(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)

	var body queryBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, h.logger, domain.ErrValidation("malformed query body: %v", err))
			return
		}
	}

	resp, err := h.sharing.Query(r.Context(),
		chi.URLParam(r, "share"), chi.URLParam(r, "schema"), chi.URLParam(r, "table"),
		sharing.QueryRequest{
			Version:        body.Version,
			PredicateHints: body.PredicateHints,
			LimitHint:      body.LimitHint,
		},
		capabilitiesFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeNDJSON(w, resp)
}

func (h *Handler) tableChanges(w http.ResponseWriter, r *http.Request) {
	advertiseCapabilities(w)

	starting := int64(0)
	if raw := r.URL.Query().Get("startingVersion"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, h.logger, domain.ErrValidation("malformed startingVersion %q", raw))
			return
		}
		starting = v
	}
	var ending *int64
	if raw := r.URL.Query().Get("endingVersion"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, h.logger, domain.ErrValidation("malformed endingVersion %q", raw))
			return
		}
		ending = &v
	}

	resp, err := h.sharing.Changes(r.Context(),
		chi.URLParam(r, "share"), chi.URLParam(r, "schema"), chi.URLParam(r, "table"),
		starting, ending, capabilitiesFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.writeNDJSON(w, resp)
}

func (h *Handler) writeNDJSON(w http.ResponseWriter, resp *sharing.Response) {
	w.Header().Set("Content-Type", sharing.NDJSONContentType)
	w.Header().Set(DeltaTableVersionHeader, strconv.FormatInt(resp.Version, 10))
	if err := sharing.WriteNDJSON(w, resp.Lines); err != nil {
		h.logger.Error("streaming response failed", "error", err)
	}
}

// syntheticFile serves files materialized by the synthetic backend. Names
// that the backend did not generate are not found.
func (h *Handler) syntheticFile(w http.ResponseWriter, r *http.Request) {
	if h.synthetic == nil {
		writeError(w, h.logger, domain.ErrNotFound("synthetic backend is not active"))
		return
	}
	name := chi.URLParam(r, "file")
	path, ok := h.synthetic.FilePath(name)
	if !ok {
		writeError(w, h.logger, domain.ErrNotFound("file %q not found", name))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (h *Handler) crawlerTrigger(w http.ResponseWriter, r *http.Request) {
	exec, err := h.crawler.Trigger(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, executionItem(exec))
}

func (h *Handler) crawlerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.crawler.Status(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	body := map[string]any{"running": status.Running}
	if status.LastExecution != nil {
		body["lastExecution"] = executionItem(status.LastExecution)
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) crawlerExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	execs, err := h.crawler.Executions(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]map[string]any, 0, len(execs))
	for i := range execs {
		items = append(items, executionItem(&execs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": items})
}

func executionItem(e *domain.CrawlerExecution) map[string]any {
	item := map[string]any{
		"id":               e.ID,
		"startedAt":        e.StartedAt,
		"durationMs":       e.DurationMs,
		"status":           e.Status,
		"storageType":      e.StorageType,
		"discoveryPattern": e.DiscoveryPattern,
		"discoveredTables": e.DiscoveredTables,
		"createdSchemas":   e.CreatedSchemas,
		"createdTables":    e.CreatedTables,
		"dryRun":           e.DryRun,
	}
	if e.FinishedAt != nil {
		item["finishedAt"] = e.FinishedAt
	}
	if e.ErrorMessage != "" {
		item["errorMessage"] = e.ErrorMessage
	}
	return item
}
