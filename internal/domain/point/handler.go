package point

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pointline/pointline-api/internal/middleware"
	"github.com/pointline/pointline-api/internal/pkg/errorhandler"
	"github.com/pointline/pointline-api/internal/pkg/response"
	"github.com/pointline/pointline-api/internal/pkg/validator"
)

var errorMappings = []errorhandler.Mapping{
	{Err: ErrValidation, Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR"},
	{Err: ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_TRANSITION"},
	{Err: ErrInsufficientBalance, Status: http.StatusConflict, Code: "INSUFFICIENT_BALANCE"},
	{Err: ErrDuplicateReference, Status: http.StatusConflict, Code: "DUPLICATE_REFERENCE"},
	{Err: ErrTransactionNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND"},
	{Err: ErrCustomerNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND"},
}

// Handler handles point ledger HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates point handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Request handles POST /points/transactions
// @Summary Request a point transaction (pending until approved)
// @Tags Points
// @Accept json
// @Produce json
// @Param request body CreateTransactionRequest true "Transaction"
// @Success 201 {object} response.Response{data=TransactionsResponse}
// @Failure 400,409,422 {object} response.Response
// @Router /points/transactions [post]
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCreate(w, r)
	if !ok {
		return
	}

	legs, err := h.service.Request(r.Context(), req.ToInput(middleware.GetOperatorID(r.Context())))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.Created(w, TransactionsResponse{Transactions: legs})
}

// Issue handles POST /points/transactions/issue
// @Summary Issue an approved point transaction and apply it immediately
// @Tags Points
// @Router /points/transactions/issue [post]
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCreate(w, r)
	if !ok {
		return
	}

	legs, err := h.service.Issue(r.Context(), req.ToInput(middleware.GetOperatorID(r.Context())))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.Created(w, TransactionsResponse{Transactions: legs})
}

// GetByID handles GET /points/transactions/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "Invalid transaction ID")
	if !ok {
		return
	}

	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, txn)
}

// Approve handles POST /points/transactions/{id}/approve
// @Summary Approve a pending transaction and apply its balance change
// @Tags Points
// @Router /points/transactions/{id}/approve [post]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "Invalid transaction ID")
	if !ok {
		return
	}

	txn, err := h.service.Approve(r.Context(), id, middleware.GetOperatorID(r.Context()))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, txn)
}

// Reject handles POST /points/transactions/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "Invalid transaction ID")
	if !ok {
		return
	}

	var req DecisionRequest
	if r.ContentLength != 0 {
		if err := response.DecodeJSON(r.Body, &req); err != nil {
			response.BadRequest(w, "Invalid JSON body")
			return
		}
		if errs := validator.Validate(&req); errs != nil {
			errorhandler.HandleValidation(r.Context(), w, errs)
			return
		}
	}

	txn, err := h.service.Reject(r.Context(), id, middleware.GetOperatorID(r.Context()), req.Reason)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, txn)
}

// Reverse handles POST /points/transactions/{id}/reverse
// @Summary Reverse an approved transaction
// @Tags Points
// @Router /points/transactions/{id}/reverse [post]
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "Invalid transaction ID")
	if !ok {
		return
	}

	var req ReverseRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	txn, err := h.service.Reverse(r.Context(), id, middleware.GetOperatorID(r.Context()), req.Reason)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, txn)
}

// Balance handles GET /points/customers/{id}/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "Invalid customer ID")
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, balance)
}

// History handles GET /points/customers/{id}/transactions
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "Invalid customer ID")
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := HistoryFilter{
		Limit:  parseIntParam(q.Get("limit"), 50),
		Offset: parseIntParam(q.Get("offset"), 0),
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if c := q.Get("category"); c != "" {
		category := Category(c)
		if !category.Valid() {
			errorhandler.HandleValidation(r.Context(), w, map[string]string{"category": "Invalid category. Must be: general or betting"})
			return
		}
		filter.Category = &category
	}
	if s := q.Get("status"); s != "" {
		status := Status(s)
		if !status.Valid() {
			errorhandler.HandleValidation(r.Context(), w, map[string]string{"status": "Invalid status. Must be: pending, approved or rejected"})
			return
		}
		filter.Status = &status
	}

	transactions, err := h.service.History(r.Context(), id, filter)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.WithMeta(w, transactions, response.Meta{Limit: filter.Limit, Offset: filter.Offset, Count: len(transactions)})
}

// Reconcile handles GET /points/customers/{id}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "Invalid customer ID")
	if !ok {
		return
	}

	rec, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	response.OK(w, rec)
}

func decodeCreate(w http.ResponseWriter, r *http.Request) (CreateTransactionRequest, bool) {
	var req CreateTransactionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return req, false
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return req, false
	}
	return req, true
}

func parseID(w http.ResponseWriter, r *http.Request, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, message)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntParam(s string, defaultValue int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultValue
	}
	return v
}
