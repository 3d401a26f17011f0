package dto

// ResolveGroupRequest is the admin decision on a proposed group.
type ResolveGroupRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
	Note     string `json:"note"`
}

// SweepResult summarises one batching sweep run.
type SweepResult struct {
	CandidatesSeen int `json:"candidatesSeen"`
	GroupsCreated  int `json:"groupsCreated"`
	MarkedSolo     int `json:"markedSolo"`
}
