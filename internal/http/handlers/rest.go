package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/geocoder89/kidshub/internal/http/middlewares"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/gin-gonic/gin"
)

const maxRowsPerRequest = 1000

// EnrollmentWriter enforces capacity and enqueues the notification jobs.
type EnrollmentWriter interface {
	Create(ctx context.Context, row store.Row, requestID string) (store.Row, error)
	SetStatus(ctx context.Context, id, status, requestID string) (store.Row, error)
}

// RestHandler serves /rest/v1/:table on top of a store.Store.
type RestHandler struct {
	db          store.Store
	enrollments EnrollmentWriter
	log         *slog.Logger
}

// NewRestHandler wires the handler. enrollments may be nil, in which case
// enrollment rows are inserted like any other row.
func NewRestHandler(db store.Store, enrollments EnrollmentWriter, log *slog.Logger) *RestHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RestHandler{db: db, enrollments: enrollments, log: log}
}

var reservedParams = map[string]struct{}{
	"select":      {},
	"order":       {},
	"limit":       {},
	"offset":      {},
	"on_conflict": {},
	"columns":     {},
}

func (h *RestHandler) table(ctx *gin.Context) (string, bool) {
	table := ctx.Param("table")
	if !store.KnownTable(table) {
		RespondNotFound(ctx, "Unknown table "+strconv.Quote(table))
		return "", false
	}
	return table, true
}

// GET /rest/v1/:table
func (h *RestHandler) Select(ctx *gin.Context) {
	table, ok := h.table(ctx)
	if !ok {
		return
	}

	q, err := parseQuery(ctx)
	if err != nil {
		RespondBadRequest(ctx, err.Error(), nil)
		return
	}

	caller, _ := middlewares.UserIDFromContext(ctx)
	c := ctx.Request.Context()

	q, err = h.scopeRead(c, table, caller, q)
	if err != nil {
		RespondStoreError(ctx, err)
		return
	}

	rows, err := h.db.Select(c, table, q)
	if err != nil {
		h.fail(ctx, table, "select", err)
		return
	}

	if policies[table].publicRead {
		respondPublicRows(ctx, rows)
		return
	}
	ctx.JSON(http.StatusOK, rows)
}

// POST /rest/v1/:table. Prefer: resolution=merge-duplicates makes it an
// upsert on ?on_conflict= (default id).
func (h *RestHandler) Insert(ctx *gin.Context) {
	table, ok := h.table(ctx)
	if !ok {
		return
	}

	rows, err := decodeRows(ctx.Request.Body)
	if err != nil {
		respondBodyError(ctx, err)
		return
	}

	caller, _ := middlewares.UserIDFromContext(ctx)
	c := ctx.Request.Context()

	for _, row := range rows {
		if err := h.checkNewRow(c, table, caller, row); err != nil {
			RespondStoreError(ctx, err)
			return
		}
	}

	if strings.Contains(ctx.GetHeader("Prefer"), "resolution=merge-duplicates") {
		h.upsert(ctx, table, rows)
		return
	}

	var out []store.Row
	if table == store.TableEnrollments && h.enrollments != nil {
		for _, row := range rows {
			created, err := h.enrollments.Create(c, row, middlewares.RequestIDFromContext(ctx))
			if err != nil {
				h.fail(ctx, table, "insert", err)
				return
			}
			out = append(out, created)
		}
	} else {
		out, err = h.db.Insert(c, table, rows...)
		if err != nil {
			h.fail(ctx, table, "insert", err)
			return
		}
	}

	ctx.JSON(http.StatusCreated, out)
}

func (h *RestHandler) upsert(ctx *gin.Context, table string, rows []store.Row) {
	onConflict := ctx.Query("on_conflict")
	if err := checkConflictTarget(table, onConflict); err != nil {
		RespondStoreError(ctx, err)
		return
	}

	out := make([]store.Row, 0, len(rows))
	for _, row := range rows {
		merged, err := h.db.Upsert(ctx.Request.Context(), table, row, onConflict)
		if err != nil {
			h.fail(ctx, table, "upsert", err)
			return
		}
		out = append(out, merged...)
	}

	ctx.JSON(http.StatusCreated, out)
}

// PATCH /rest/v1/:table?col=op.value
func (h *RestHandler) Update(ctx *gin.Context) {
	table, ok := h.table(ctx)
	if !ok {
		return
	}

	q, err := parseQuery(ctx)
	if err != nil {
		RespondBadRequest(ctx, err.Error(), nil)
		return
	}

	rows, err := decodeRows(ctx.Request.Body)
	if err != nil {
		respondBodyError(ctx, err)
		return
	}
	if len(rows) != 1 {
		RespondBadRequest(ctx, "Body must be a single JSON object", nil)
		return
	}
	values := rows[0]

	caller, _ := middlewares.UserIDFromContext(ctx)

	if table == store.TableEnrollments {
		if id, ok := eqValue(q.Filters, "id"); ok && caller != "" {
			h.updateEnrollment(ctx, caller, id, values)
			return
		}
	}

	filters, err := scopeWrite(table, caller, q.Filters, values)
	if err != nil {
		RespondStoreError(ctx, err)
		return
	}

	out, err := h.db.Update(ctx.Request.Context(), table, values, filters...)
	if err != nil {
		h.fail(ctx, table, "update", err)
		return
	}

	ctx.JSON(http.StatusOK, out)
}

// updateEnrollment lets both the guardian and the activity's organizer move
// an enrollment between statuses.
func (h *RestHandler) updateEnrollment(ctx *gin.Context, caller, id string, values store.Row) {
	c := ctx.Request.Context()

	current, err := h.db.Select(c, store.TableEnrollments, store.Where(store.Eq("id", id)).Page(1, 0))
	if err != nil {
		h.fail(ctx, store.TableEnrollments, "update", err)
		return
	}
	if len(current) == 0 {
		ctx.JSON(http.StatusOK, []store.Row{})
		return
	}

	if err := h.authorizeEnrollmentUpdate(c, caller, current[0], values); err != nil {
		RespondStoreError(ctx, err)
		return
	}

	status, onlyStatus := values["status"].(string)
	if onlyStatus && len(values) == 1 && h.enrollments != nil {
		row, err := h.enrollments.SetStatus(c, id, status, middlewares.RequestIDFromContext(ctx))
		if err != nil {
			h.fail(ctx, store.TableEnrollments, "update", err)
			return
		}
		ctx.JSON(http.StatusOK, []store.Row{row})
		return
	}

	out, err := h.db.Update(c, store.TableEnrollments, values, store.Eq("id", id))
	if err != nil {
		h.fail(ctx, store.TableEnrollments, "update", err)
		return
	}
	ctx.JSON(http.StatusOK, out)
}

// DELETE /rest/v1/:table?col=op.value
func (h *RestHandler) Delete(ctx *gin.Context) {
	table, ok := h.table(ctx)
	if !ok {
		return
	}

	q, err := parseQuery(ctx)
	if err != nil {
		RespondBadRequest(ctx, err.Error(), nil)
		return
	}

	caller, _ := middlewares.UserIDFromContext(ctx)
	filters, err := scopeWrite(table, caller, q.Filters, nil)
	if err != nil {
		RespondStoreError(ctx, err)
		return
	}

	if err := h.db.Delete(ctx.Request.Context(), table, filters...); err != nil {
		h.fail(ctx, table, "delete", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *RestHandler) fail(ctx *gin.Context, table, op string, err error) {
	var se *store.Error
	if !errors.As(err, &se) {
		h.log.ErrorContext(ctx.Request.Context(), "store operation failed",
			"table", table, "op", op, "err", err, "request_id", middlewares.RequestIDFromContext(ctx))
	}
	RespondStoreError(ctx, err)
}

func parseQuery(ctx *gin.Context) (store.Query, error) {
	var q store.Query

	for key, values := range ctx.Request.URL.Query() {
		if _, reserved := reservedParams[key]; reserved {
			continue
		}
		for _, raw := range values {
			f, err := store.ParseFilter(key, raw)
			if err != nil {
				return q, err
			}
			q.Filters = append(q.Filters, f)
		}
	}

	order, err := store.ParseOrder(ctx.Query("order"))
	if err != nil {
		return q, err
	}
	q.Order = order

	if q.Limit, err = intParam(ctx, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = intParam(ctx, "offset"); err != nil {
		return q, err
	}
	if q.Limit == 0 || q.Limit > maxRowsPerRequest {
		q.Limit = maxRowsPerRequest
	}

	return q, q.Validate()
}

func intParam(ctx *gin.Context, name string) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func respondBodyError(ctx *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large",
			"Request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes", nil)
		return
	}
	RespondBadRequest(ctx, err.Error(), nil)
}

// decodeRows accepts a JSON object or an array of objects.
func decodeRows(body io.Reader) ([]store.Row, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.New("body must be JSON")
	}

	switch t := v.(type) {
	case map[string]any:
		return []store.Row{t}, nil
	case []any:
		if len(t) > maxRowsPerRequest {
			return nil, errors.New("too many rows")
		}
		rows := make([]store.Row, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, errors.New("array items must be objects")
			}
			rows = append(rows, m)
		}
		if len(rows) == 0 {
			return nil, errors.New("no rows given")
		}
		return rows, nil
	default:
		return nil, errors.New("body must be an object or an array of objects")
	}
}
