package store

import (
	"time"

	"landgov/api/internal/area"
)

type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	ContactNumber string
	Role          string
	// Plot/area binding set when a citizen is mapped to an allotted plot.
	PlotID    string
	AreaID    string
	CreatedAt time.Time
}

// Plot is one parcel inside an area's backing table. PlotID is unique
// within the area, not globally.
type Plot struct {
	PlotID        int
	AreaID        area.ID
	Points        string
	Bought        bool
	LeasePrice    float64
	LeaseDuration int
	BoughtBy      string
	AllotmentAt   *time.Time
}

// Request workflow stages. The stage only advances forward or terminates;
// it never re-enters district_pending.
const (
	StageDistrictPending = "district_pending"
	StageStatePending    = "state_pending"
	StageAllocated       = "allocated"
	StageRejected        = "rejected"
)

type LandRequest struct {
	ID                 string
	AreaID             area.ID
	PlotID             int
	Points             string
	Purpose            string
	QuotedPrice        float64
	QuotedBy           string
	WorkflowStage      string
	SubmittedAt        time.Time
	DistrictApprovedAt *time.Time
	StateApprovedAt    *time.Time
	RejectedAt         *time.Time
	RejectedBy         string
}

const (
	LeaseActive      = "active"
	LeaseExpired     = "expired"
	LeaseWarningSent = "warning_sent"
)

type Lease struct {
	ID            string
	UserID        string
	UserEmail     string
	AreaID        area.ID
	PlotID        int
	LeaseYears    int
	AllotmentDate time.Time
	LeaseEndDate  time.Time
	Status        string
	BidPrice      float64
}

// Violation is the per-(area, plot) encroachment record. OwnerEmail is a
// snapshot taken at flagging time, not a live reference.
type Violation struct {
	ID              string
	UserID          string
	OwnerEmail      string
	AreaID          area.ID
	PlotID          string
	ViolationStatus bool
	ReportObjectID  string
	ReportURL       string
	OutputImagePath string
	AdminComments   string
	AnalyzedAt      time.Time
	UpdatedAt       time.Time
}

// Appeal workflow stages: district_pending -> {state_pending,
// district_rejected}; a fresh appeal after district_rejected starts
// directly at state_pending; state_pending -> {state_approved,
// state_rejected}.
const (
	AppealDistrictPending  = "district_pending"
	AppealDistrictRejected = "district_rejected"
	AppealStatePending     = "state_pending"
	AppealStateApproved    = "state_approved"
	AppealStateRejected    = "state_rejected"
)

const (
	DistrictDecisionApproved  = "approved"
	DistrictDecisionRejected  = "rejected"
	DistrictDecisionForwarded = "forwarded"
)

// Site application statuses. Applications are single-step: pending until
// an admin approves or rejects, with no district/state split.
const (
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationRejected = "rejected"
)

// SiteApplication is a free-location land proposal: the citizen picks a
// coordinate outside the plot registry instead of bidding on a plot.
type SiteApplication struct {
	ID                 string
	UserID             string
	UserName           string
	UserEmail          string
	ContactNumber      string
	Latitude           float64
	Longitude          float64
	AddressDescription string
	QuotedPrice        float64
	Status             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Appeal struct {
	ID               string
	UserID           string
	UserEmail        string
	ViolationID      string
	UserMessage      string
	Stage            string
	DistrictRemark   string
	DistrictDecision string
	StateRemark      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
