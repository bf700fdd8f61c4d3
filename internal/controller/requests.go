package controller

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

// segmentRulePattern accepts comma-separated tags.
var segmentRulePattern = regexp.MustCompile(`^[A-Za-z0-9_\-,\s]*$`)

type CreateCampaignRequest struct {
	Name        string `json:"name"`
	Template    string `json:"template"`
	SegmentRule string `json:"segment_rule"`
}

func (m CreateCampaignRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Template, validation.Required, validation.Length(1, 2000),
			validation.By(func(interface{}) error {
				if strings.TrimSpace(m.Template) == "" {
					return validation.NewError("validation_blank", "cannot be blank")
				}
				return nil
			})),
		validation.Field(&m.SegmentRule, validation.Length(0, 200), validation.Match(segmentRulePattern)),
	)
}

type CreateCampaignResponse struct {
	CampaignID int `json:"campaign_id"`
}

type ListCampaignsResponse struct {
	Data       []model.Campaign `json:"data"`
	Pagination map[string]int   `json:"pagination"`
}
