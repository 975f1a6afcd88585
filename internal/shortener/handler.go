package shortener

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/sundayezeilo/linkstat/internal/analytics"
	"github.com/sundayezeilo/linkstat/internal/auth"
	"github.com/sundayezeilo/linkstat/internal/errx"
	"github.com/sundayezeilo/linkstat/internal/httpx"
)

// QRCodeSize is the edge length in pixels of generated QR images.
const QRCodeSize = 256

// HTTPCreateLinkRequest represents the JSON request body for creating a link.
type HTTPCreateLinkRequest struct {
	OriginalURL string `json:"original_url"`
	CustomCode  string `json:"custom_code,omitempty"`
}

// LinkResponse is the JSON form of a link.
type LinkResponse struct {
	ID           string `json:"id"`
	ShortCode    string `json:"short_code"`
	ShortURL     string `json:"short_url"`
	OriginalURL  string `json:"original_url"`
	CreatedAt    string `json:"created_at"`
	TotalClicks  int64  `json:"total_clicks"`
	UniqueClicks int64  `json:"unique_clicks"`
}

// LinkListResponse is one page of the caller's links.
type LinkListResponse struct {
	Links  []LinkResponse `json:"links"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ClickResponse is one click event. Referrer and user agent are null when
// the visitor did not send them.
type ClickResponse struct {
	Timestamp string  `json:"timestamp"`
	Referrer  *string `json:"referrer"`
	UserAgent *string `json:"user_agent"`
	IsUnique  bool    `json:"is_unique"`
}

// ClickListResponse is one page of click events, newest first.
type ClickListResponse struct {
	Clicks []ClickResponse `json:"clicks"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// ChartPoint is the click count for one UTC day.
type ChartPoint struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
}

// StatsResponse pairs a link with its daily click series.
type StatsResponse struct {
	Link      LinkResponse `json:"link"`
	ChartData []ChartPoint `json:"chart_data"`
}

// Handler provides HTTP handlers for links, their analytics and redirects.
type Handler struct {
	service    Service
	logger     *slog.Logger
	baseURL    string
	trustProxy bool
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service    Service
	Logger     *slog.Logger
	BaseURL    string // used to build short URLs, e.g. "https://lnk.st"
	TrustProxy bool   // take the client IP from X-Forwarded-For
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service:    cfg.Service,
		logger:     logger,
		baseURL:    cfg.BaseURL,
		trustProxy: cfg.TrustProxy,
	}
}

// CreateLink handles POST /api/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	req, err := httpx.DecodeJSON[HTTPCreateLinkRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteErrx(w, err)
		return
	}
	if req.OriginalURL == "" {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "original_url is required", nil)
		return
	}

	link, err := h.service.Create(ctx, CreateLinkRequest{
		OwnerID:     owner,
		OriginalURL: req.OriginalURL,
		CustomCode:  req.CustomCode,
	})
	if err != nil {
		h.handleError(ctx, w, err, "create link failed")
		return
	}

	logger.InfoContext(ctx, "link created",
		"link_id", link.ID.String(),
		"code", link.Code,
		"custom_code", req.CustomCode != "",
	)

	httpx.WriteJSON(w, http.StatusCreated, h.toLinkResponse(link))
}

// ListLinks handles GET /api/links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	limit, offset := pageParams(r)
	page, err := h.service.List(r.Context(), owner, limit, offset)
	if err != nil {
		h.handleError(r.Context(), w, err, "list links failed")
		return
	}

	resp := LinkListResponse{
		Links:  make([]LinkResponse, 0, len(page.Links)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, link := range page.Links {
		resp.Links = append(resp.Links, h.toLinkResponse(link))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// GetLink handles GET /api/links/{code}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	link, err := h.service.Get(r.Context(), owner, r.PathValue("code"))
	if err != nil {
		h.handleError(r.Context(), w, err, "get link failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toLinkResponse(link))
}

// DeleteLink handles DELETE /api/links/{code}.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	code := r.PathValue("code")
	if err := h.service.Delete(ctx, owner, code); err != nil {
		h.handleError(ctx, w, err, "delete link failed")
		return
	}

	h.requestLogger(r).InfoContext(ctx, "link deleted", "code", code)
	w.WriteHeader(http.StatusNoContent)
}

// ListClicks handles GET /api/links/{code}/clicks.
func (h *Handler) ListClicks(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	limit, offset := pageParams(r)
	page, err := h.service.ListClicks(r.Context(), owner, r.PathValue("code"), limit, offset)
	if err != nil {
		h.handleError(r.Context(), w, err, "list clicks failed")
		return
	}

	resp := ClickListResponse{
		Clicks: make([]ClickResponse, 0, len(page.Clicks)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, c := range page.Clicks {
		resp.Clicks = append(resp.Clicks, toClickResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// LinkStats handles GET /api/links/{code}/stats.
func (h *Handler) LinkStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	days := queryInt(r, "days", DefaultStatsDays, 1, MaxStatsDays)
	stats, err := h.service.Stats(r.Context(), owner, r.PathValue("code"), days)
	if err != nil {
		h.handleError(r.Context(), w, err, "link stats failed")
		return
	}

	resp := StatsResponse{
		Link:      h.toLinkResponse(stats.Link),
		ChartData: make([]ChartPoint, 0, len(stats.Daily)),
	}
	for _, d := range stats.Daily {
		resp.ChartData = append(resp.ChartData, ChartPoint{Date: d.Date, Clicks: d.Clicks})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// LinkQR handles GET /api/links/{code}/qr and returns a PNG of the short URL.
func (h *Handler) LinkQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	link, err := h.service.Get(ctx, owner, r.PathValue("code"))
	if err != nil {
		h.handleError(ctx, w, err, "qr code lookup failed")
		return
	}

	qr, err := qrcode.New(h.shortURL(link.Code), qrcode.Medium)
	if err != nil {
		h.handleError(ctx, w, errx.E("shortener.handler.LinkQR", errx.Internal, err), "qr code encode failed")
		return
	}
	png, err := qr.PNG(QRCodeSize)
	if err != nil {
		h.handleError(ctx, w, errx.E("shortener.handler.LinkQR", errx.Internal, err), "qr code render failed")
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=3600")
	httpx.WriteBlob(w, http.StatusOK, "image/png", png)
}

// Redirect handles GET /{code}. Recording the visit happens in the
// background, so the response never waits on analytics.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PathValue("code")

	dest, err := h.service.Resolve(ctx, analytics.Visit{
		Code:      code,
		IP:        httpx.ClientIP(r, h.trustProxy),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	})
	if err != nil {
		h.handleError(ctx, w, err, "resolve link failed")
		return
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return "", false
	}
	return id.UserID, true
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// handleError logs err at a level matching its kind and writes the JSON error.
func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"request_id", httpx.GetRequestID(ctx),
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	switch kind {
	case errx.Invalid, errx.NotFound, errx.Conflict, errx.Unauthorized, errx.Forbidden:
		h.logger.WarnContext(ctx, msg, logAttrs...)
	default:
		h.logger.ErrorContext(ctx, msg, logAttrs...)
	}

	httpx.WriteErrx(w, err)
}

func (h *Handler) shortURL(code string) string {
	return h.baseURL + "/" + code
}

func (h *Handler) toLinkResponse(link Link) LinkResponse {
	return LinkResponse{
		ID:           link.ID.String(),
		ShortCode:    link.Code,
		ShortURL:     h.shortURL(link.Code),
		OriginalURL:  link.DestinationURL,
		CreatedAt:    link.CreatedAt.UTC().Format(time.RFC3339),
		TotalClicks:  link.TotalClicks,
		UniqueClicks: link.UniqueClicks,
	}
}

func toClickResponse(e analytics.ClickEvent) ClickResponse {
	return ClickResponse{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Referrer:  optional(e.Referrer),
		UserAgent: optional(e.UserAgent),
		IsUnique:  e.IsUnique,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = queryInt(r, "limit", DefaultPageLimit, 1, MaxPageLimit)
	offset = queryInt(r, "offset", 0, 0, math.MaxInt32)
	return limit, offset
}

// queryInt reads an integer query parameter. Missing or malformed values
// yield def; anything else is clamped to [lo, hi].
func queryInt(r *http.Request, key string, def, lo, hi int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return min(max(n, lo), hi)
}
