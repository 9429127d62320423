package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"tendermarket/internal/lifecycle"
	"tendermarket/internal/models"
)

type Service interface {
	AddTender(ctx context.Context, caller models.Caller, tender models.Tender) (models.Tender, error)
	GetTender(ctx context.Context, caller models.Caller, tenderId string) (models.Tender, error)
	GetTenders(ctx context.Context, caller models.Caller, limit, offset int, categories []models.TenderCategory) ([]models.Tender, error)
	OwnerTenders(ctx context.Context, caller models.Caller, limit, offset int) ([]models.Tender, error)
	EditTender(ctx context.Context, caller models.Caller, tenderId string, changes map[string]string) (models.Tender, error)
	DeleteTender(ctx context.Context, caller models.Caller, tenderId string) error

	PublishTender(ctx context.Context, caller models.Caller, tenderId string) (models.Tender, error)
	RevealProposals(ctx context.Context, caller models.Caller, tenderId string) (models.Tender, error)
	ModerateTender(ctx context.Context, caller models.Caller, tenderId string, action lifecycle.ModerationAction, reason string) (models.Tender, error)

	SubmitProposal(ctx context.Context, caller models.Caller, proposal models.Proposal) (models.Proposal, error)
	TenderProposals(ctx context.Context, caller models.Caller, tenderId string) ([]models.Proposal, error)
	TenderAudit(ctx context.Context, caller models.Caller, tenderId string) ([]models.AuditEntry, error)
}

type Controller struct {
	service Service
	log     *zap.Logger
}

func NewController(service Service, log *zap.Logger) *Controller {
	return &Controller{service: service, log: log}
}

// GET /api/ping
func (c *Controller) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

//// Tenders

// GET /api/tenders
func (c *Controller) GetTenders(w http.ResponseWriter, r *http.Request) {
	caller, err := c.caller(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	query := r.URL.Query()

	limit, err := c.getQueryInt(query, "limit")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'limit' query parameter: "+query.Get("limit"))
		return
	}

	offset, err := c.getQueryInt(query, "offset")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'offset' query parameter: "+query.Get("offset"))
		return
	}

	var categories []models.TenderCategory
	for _, str := range query["category"] {
		cat := models.TenderCategory(str)
		if !models.ValidTenderCategory(cat) {
			c.errorResponse(w, http.StatusBadRequest, "invalid category supplied: "+str)
			return
		}
		categories = append(categories, cat)
	}

	tenders, err := c.service.GetTenders(r.Context(), caller, limit, offset, categories)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tenders)
}

// POST /api/tenders/new
func (c *Controller) NewTender(w http.ResponseWriter, r *http.Request) {
	caller, err := c.caller(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewTenderReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	tender, err := c.service.AddTender(r.Context(), caller, models.Tender{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		WorkflowType:   req.WorkflowType,
		Visibility:     req.Visibility,
		InviteList:     req.InviteList,
		Budget:         req.Budget,
		Deadline:       req.Deadline,
		OrganizationId: req.OrganizationId,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tender)
}

// GET /api/tenders/my
func (c *Controller) MyTenders(w http.ResponseWriter, r *http.Request) {
	caller, err := c.caller(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	query := r.URL.Query()

	limit, err := c.getQueryInt(query, "limit")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'limit' query parameter: "+query.Get("limit"))
		return
	}

	offset, err := c.getQueryInt(query, "offset")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'offset' query parameter: "+query.Get("offset"))
		return
	}

	tenders, err := c.service.OwnerTenders(r.Context(), caller, limit, offset)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tenders)
}

// GET /api/tenders/{tenderId}
func (c *Controller) GetTender(w http.ResponseWriter, r *http.Request) {
	caller, tenderId, err := c.callerAndTender(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	tender, err := c.service.GetTender(r.Context(), caller, tenderId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tender)
}

// PATCH /api/tenders/{tenderId}/edit
func (c *Controller) EditTender(w http.ResponseWriter, r *http.Request) {
	caller, tenderId, err := c.callerAndTender(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}
	req, err := ParseTenderChangeReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	tender, err := c.service.EditTender(r.Context(), caller, tenderId, req)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tender)
}

// DELETE /api/tenders/{tenderId}
func (c *Controller) DeleteTender(w http.ResponseWriter, r *http.Request) {
	caller, tenderId, err := c.callerAndTender(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	err = c.service.DeleteTender(r.Context(), caller, tenderId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

//// Lifecycle

// PUT /api/tenders/{tenderId}/publish
func (c *Controller) PublishTender(w http.ResponseWriter, r *http.Request) {
	caller, tenderId, err := c.callerAndTender(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	tender, err := c.service.PublishTender(r.Context(), caller, tenderId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tender)
}

// PUT /api/tenders/{tenderId}/reveal
func (c *Controller) RevealTender(w http.ResponseWriter, r *http.Request) {
	caller, tenderId, err := c.callerAndTender(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	tender, err := c.service.RevealProposals(r.Context(), caller, tenderId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tender)
}

// PUT /api/tenders/{tenderId}/moderate
func (c *Controller) ModerateTender(w http.ResponseWriter, r *http.Request) {
	caller, tenderId, err := c.callerAndTender(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	query := r.URL.Query()
	action := lifecycle.ModerationAction(query.Get("action"))
	if !lifecycle.ValidModerationAction(action) {
		c.errorResponse(w, http.StatusBadRequest, "empty or invalid moderation action supplied")
		return
	}

	tender, err := c.service.ModerateTender(r.Context(), caller, tenderId, action, query.Get("reason"))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, tender)
}

// GET /api/tenders/{tenderId}/audit
func (c *Controller) TenderAudit(w http.ResponseWriter, r *http.Request) {
	caller, tenderId, err := c.callerAndTender(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	entries, err := c.service.TenderAudit(r.Context(), caller, tenderId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, entries)
}

//// Proposals

// POST /api/proposals/new
func (c *Controller) NewProposal(w http.ResponseWriter, r *http.Request) {
	caller, err := c.caller(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewProposalReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	proposal, err := c.service.SubmitProposal(r.Context(), caller, models.Proposal{
		TenderId:    req.TenderId,
		BidAmount:   req.BidAmount,
		Description: req.Description,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, proposal)
}

// GET /api/proposals/{tenderId}/list
func (c *Controller) TenderProposals(w http.ResponseWriter, r *http.Request) {
	caller, tenderId, err := c.callerAndTender(r)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	proposals, err := c.service.TenderProposals(r.Context(), caller, tenderId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, proposals)
}

// Service

type ErrorResponse struct {
	Reason string `json:"reason"`
}

// caller extracts the identity the (external) auth layer attached to the
// request.
func (c *Controller) caller(r *http.Request) (models.Caller, error) {
	id := r.Header.Get("X-User-Id")
	role := models.CallerRole(r.Header.Get("X-User-Role"))

	if len(id) == 0 || !models.ValidCallerRole(role) {
		return models.Caller{}, models.ErrInvalidCaller
	}
	return models.Caller{Id: id, Role: role}, nil
}

func (c *Controller) callerAndTender(r *http.Request) (models.Caller, string, error) {
	caller, err := c.caller(r)
	if err != nil {
		return caller, "", err
	}

	tenderId := r.PathValue("tenderId")
	if len(tenderId) == 0 {
		return caller, "", models.ErrNoTender
	}
	return caller, tenderId, nil
}

func (c *Controller) getQueryInt(query url.Values, key string) (int, error) {
	strs, ok := query[key]
	if ok && len(strs) > 0 {
		return strconv.Atoi(strs[0])
	}
	return 0, nil
}

func (c *Controller) errorResponse(w http.ResponseWriter, status int, text string) {
	w.WriteHeader(status)

	data, err := json.Marshal(ErrorResponse{Reason: text})
	if err != nil {
		c.log.Error("controller: could not marshal error response", zap.Error(err))
		return
	}

	_, err = w.Write(data)
	if err != nil {
		c.log.Error("controller: could not write error response", zap.Error(err))
	}
}

func (c *Controller) serviceErrorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCaller):
		c.errorResponse(w, http.StatusUnauthorized, "caller identity is missing or invalid")
	case errors.Is(err, models.ErrForbidden):
		c.errorResponse(w, http.StatusForbidden, "caller has no permission for requested action")
	case errors.Is(err, models.ErrNoTender), errors.Is(err, models.ErrTenderDeleted):
		c.errorResponse(w, http.StatusNotFound, "requested tender does not exist or is inaccessible")
	case errors.Is(err, models.ErrNoProposal):
		c.errorResponse(w, http.StatusNotFound, "requested proposal does not exist")
	case errors.Is(err, models.ErrDeadlineNotSet):
		c.errorResponse(w, http.StatusBadRequest, "tender deadline must be set strictly in the future")
	case errors.Is(err, models.ErrDeadlinePassed):
		c.errorResponse(w, http.StatusForbidden, "tender deadline has already passed")
	case errors.Is(err, models.ErrDeadlineNotReached):
		c.errorResponse(w, http.StatusForbidden, "tender deadline has not been reached yet")
	case errors.Is(err, models.ErrNotSealed):
		c.errorResponse(w, http.StatusBadRequest, "tender does not use the sealed-bid workflow")
	case errors.Is(err, models.ErrProposalsSealed):
		c.errorResponse(w, http.StatusForbidden, "proposals are sealed until the tender owner reveals them")
	case errors.Is(err, models.ErrSealedImmutable):
		c.errorResponse(w, http.StatusForbidden, "sealed tender cannot be modified")
	case errors.Is(err, models.ErrWorkflowImmutable):
		c.errorResponse(w, http.StatusForbidden, "workflow type cannot change after publication")
	case errors.Is(err, models.ErrAlreadyRevealed):
		c.errorResponse(w, http.StatusConflict, "tender proposals have already been revealed")
	case errors.Is(err, models.ErrAlreadyTransitioned):
		c.errorResponse(w, http.StatusConflict, "tender was concurrently moved to another status")
	case errors.Is(err, models.ErrNotFlagged):
		c.errorResponse(w, http.StatusConflict, "tender is not flagged by moderation")
	case errors.Is(err, models.ErrWrongStatus):
		c.errorResponse(w, http.StatusForbidden, "tender status does not permit requested action")
	case errors.Is(err, models.ErrBidTooLarge):
		c.errorResponse(w, http.StatusBadRequest, "proposal bid exceeds the allowed bound for this tender")
	case errors.Is(err, models.ErrWrongRole):
		c.errorResponse(w, http.StatusForbidden, "caller role may not apply to this tender category")
	case errors.Is(err, models.ErrNotInvited):
		c.errorResponse(w, http.StatusForbidden, "caller is not on the tender's invite list")
	default:
		c.log.Error("controller: unexpected service error", zap.Error(err))
		c.errorResponse(w, http.StatusInternalServerError, "internal server error")
	}
}

func (c *Controller) marshalResponse(w http.ResponseWriter, data any) {
	d, err := json.Marshal(data)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not marshal response data")
		return
	}

	_, err = w.Write(d)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not write response data")
		return
	}
}

func (c *Controller) readBody(src io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	src.Close()
	return data, nil
}
