package model

type BatchCreateRequest struct {
	Records []RecordInput `json:"records" validate:"required,min=1,max=1000,dive"`
}

type BatchCreateResponse struct {
	Created int `json:"created"`
}

type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

type RecordQuery struct {
	Page        int    `form:"page"`
	Limit       int    `form:"limit"`
	QuestionNo  string `form:"questionNo"`
	QuestionKey string `form:"questionKey"`
}

type RecordPage struct {
	Records    []GradingRecord `json:"records"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

type LicenseStatus struct {
	Entitled       bool   `json:"entitled"`
	RemainingQuota int    `json:"remainingQuota"`
	Message        string `json:"message,omitempty"`
}

// Identity is the opaque caller identity sent on every remote call.
type Identity struct {
	DeviceID     string `json:"deviceId"`
	ActivationID string `json:"activationId,omitempty"`
}

func (i Identity) Key() string {
	return i.DeviceID + "|" + i.ActivationID
}
