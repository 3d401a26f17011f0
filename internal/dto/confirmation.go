package dto

// RedeemRequest carries the manager decision behind an email link.
type RedeemRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
	Reason string `json:"reason"`
}
