package controller

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatcher/internal/logger"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Log             zerolog.Logger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := body.Validate(); err != nil {
		respondValidationErrors(w, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body.Name, body.Template, body.SegmentRule)
	if err != nil {
		respondServiceError(w, c.log(r), err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateCampaignResponse{CampaignID: campaign.ID})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, okPage := queryInt(r, "page", 1)
	pageSize, okSize := queryInt(r, "page_size", 20)
	if !okPage || !okSize {
		respondError(w, http.StatusBadRequest, "page and page_size must be non-negative integers")
		return
	}
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		respondServiceError(w, c.log(r), err)
		return
	}

	respondJSON(w, http.StatusOK, ListCampaignsResponse{Data: campaigns, Pagination: pagination})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	campaign, err := c.CampaignService.GetCampaign(r.Context(), id)
	if err != nil {
		respondServiceError(w, c.log(r), err)
		return
	}

	respondJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	result, err := c.CampaignService.SendCampaign(r.Context(), id)
	if err != nil {
		respondServiceError(w, c.log(r), err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (c *CampaignController) PreviewCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	limit, ok := queryInt(r, "limit", service.DefaultPreviewLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	preview, err := c.CampaignService.Preview(r.Context(), id, limit)
	if err != nil {
		respondServiceError(w, c.log(r), err)
		return
	}

	respondJSON(w, http.StatusOK, preview)
}

func (c *CampaignController) GetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	stats, err := c.CampaignService.GetStats(r.Context(), id)
	if err != nil {
		respondServiceError(w, c.log(r), err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (c *CampaignController) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	limit, ok := queryInt(r, "limit", service.DefaultMessagesLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	messages, err := c.CampaignService.ListMessages(r.Context(), id, limit)
	if err != nil {
		respondServiceError(w, c.log(r), err)
		return
	}

	respondJSON(w, http.StatusOK, messages)
}

func (c *CampaignController) RequeueFailed(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	result, err := c.CampaignService.RequeueFailed(r.Context(), id)
	if err != nil {
		respondServiceError(w, c.log(r), err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (c *CampaignController) log(r *http.Request) zerolog.Logger {
	return logger.FromContext(r.Context(), c.Log)
}
