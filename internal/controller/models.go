package controller

import (
	"encoding/json"
	"fmt"
	"time"

	"tendermarket/internal/models"
)

// New tender request

type NewTenderReq struct {
	Name           string                  `json:"name"`
	Description    string                  `json:"description"`
	Category       models.TenderCategory   `json:"category"`
	WorkflowType   models.WorkflowType     `json:"workflowType"`
	Visibility     models.TenderVisibility `json:"visibility"`
	InviteList     []string                `json:"inviteList"`
	Budget         int64                   `json:"budget"`
	Deadline       time.Time               `json:"deadline"`
	OrganizationId string                  `json:"organizationId"`
}

func ParseNewTenderReq(data []byte) (*NewTenderReq, error) {
	t := &NewTenderReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if !models.ValidTenderCategory(t.Category) {
		return nil, fmt.Errorf("invalid category supplied: %s, should be one of: %s, %s", string(t.Category), models.CategoryFreelance, models.CategoryProfessional)
	}

	if len(t.WorkflowType) == 0 {
		t.WorkflowType = models.WorkflowOpen
	} else if !models.ValidWorkflowType(t.WorkflowType) {
		return nil, fmt.Errorf("invalid workflow type supplied: %s, should be one of: %s, %s", string(t.WorkflowType), models.WorkflowOpen, models.WorkflowClosed)
	}

	if len(t.Visibility) == 0 {
		t.Visibility = models.VisibilityPublic
	} else if !models.ValidTenderVisibility(t.Visibility) {
		return nil, fmt.Errorf("invalid visibility supplied: %s", string(t.Visibility))
	}

	if t.Budget <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %d", t.Budget)
	}

	if err = checkLengthLimit(t.Name, "Name", 100); err != nil {
		return nil, err
	}
	if len(t.Name) == 0 {
		return nil, fmt.Errorf("field 'Name' must not be empty")
	}
	if err = checkLengthLimit(t.Description, "Description", 500); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(t.OrganizationId, "OrganizationId", 100); err != nil {
		return nil, err
	}

	return t, nil
}

// Edit tender request

type TenderChangeReq map[string]string

var editableTenderFields = map[string]int{
	"name":         100,
	"description":  500,
	"visibility":   50,
	"workflowType": 50,
	"category":     50,
	"budget":       20,
	"deadline":     50,
}

func ParseTenderChangeReq(data []byte) (TenderChangeReq, error) {
	t := TenderChangeReq{}
	vals := make(map[string]interface{})

	err := json.Unmarshal(data, &vals)
	if err != nil {
		return nil, err
	}

	for key := range vals {
		limit, ok := editableTenderFields[key]
		if !ok {
			return nil, fmt.Errorf("field '%s' is unknown or not editable", key)
		}

		str, ok, err := checkRequestField(vals, key, limit)
		if err != nil {
			return nil, err
		}
		if ok {
			t[key] = str
		}
	}

	return t, nil
}

// New proposal request

type NewProposalReq struct {
	TenderId    string `json:"tenderId"`
	BidAmount   int64  `json:"bidAmount"`
	Description string `json:"description"`
}

func ParseNewProposalReq(data []byte) (*NewProposalReq, error) {
	t := &NewProposalReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if len(t.TenderId) == 0 {
		return nil, fmt.Errorf("field 'TenderId' must not be empty")
	}
	if t.BidAmount <= 0 {
		return nil, fmt.Errorf("bid amount must be positive, got %d", t.BidAmount)
	}
	if err = checkLengthLimit(t.Description, "Description", 500); err != nil {
		return nil, err
	}

	return t, nil
}

// Service

func checkLengthLimit(str, fieldName string, limit int) error {
	if len(str) > limit {
		return fmt.Errorf("field '%s' exceeds length limit: %d / %d", fieldName, len(str), limit)
	}
	return nil
}

func checkRequestField(vals map[string]interface{}, key string, lengthLimit int) (string, bool, error) {
	val, ok := vals[key]
	if !ok {
		return "", false, nil
	}

	// budget arrives as a json number
	if num, isNum := val.(float64); isNum && key == "budget" {
		return fmt.Sprintf("%.0f", num), true, nil
	}

	str, ok := val.(string)
	if !ok {
		return "", false, fmt.Errorf("invalid type of '%s' field", key)
	}

	if err := checkLengthLimit(str, key, lengthLimit); err != nil {
		return "", false, err
	}

	return str, true, nil
}
