package models

import "time"

// Biodata is the applicant-supplied part of an application. Empty strings are
// stored as NULL.
type Biodata struct {
	Name                     string `json:"name"`
	Gender                   string `json:"gender"`
	DateOfBirth              string `json:"date_of_birth"` // YYYY-MM-DD
	TimeOfBirth              string `json:"time_of_birth"`
	PlaceOfBirth             string `json:"place_of_birth"`
	Height                   string `json:"height"`
	BirthStar                string `json:"birth_star"`
	ZodiacSign               string `json:"zodiac_sign"`
	Gothram                  string `json:"gothram"`
	CurrentLiving            string `json:"current_living"`
	EducationalDetails       string `json:"educational_details"`
	Designation              string `json:"designation"`
	Company                  string `json:"company"`
	PreviousWorkExperience   string `json:"previous_work_experience"`
	FathersName              string `json:"fathers_name"`
	FathersFatherName        string `json:"fathers_father_name"`
	MothersName              string `json:"mothers_name"`
	MothersFatherName        string `json:"mothers_father_name"`
	Siblings                 string `json:"siblings"`
	EmailID                  string `json:"email_id"`
	MainContactNumber        string `json:"main_contact_number"`
	AlternativeContactNumber string `json:"alternative_contact_number"`
}

// Field binds a column name to the Biodata member that holds it.
type Field struct {
	Column string
	Ptr    *string
}

// Fields lists every biodata column in storage order.
func (b *Biodata) Fields() []Field {
	return []Field{
		{"name", &b.Name},
		{"gender", &b.Gender},
		{"date_of_birth", &b.DateOfBirth},
		{"time_of_birth", &b.TimeOfBirth},
		{"place_of_birth", &b.PlaceOfBirth},
		{"height", &b.Height},
		{"birth_star", &b.BirthStar},
		{"zodiac_sign", &b.ZodiacSign},
		{"gothram", &b.Gothram},
		{"current_living", &b.CurrentLiving},
		{"educational_details", &b.EducationalDetails},
		{"designation", &b.Designation},
		{"company", &b.Company},
		{"previous_work_experience", &b.PreviousWorkExperience},
		{"fathers_name", &b.FathersName},
		{"fathers_father_name", &b.FathersFatherName},
		{"mothers_name", &b.MothersName},
		{"mothers_father_name", &b.MothersFatherName},
		{"siblings", &b.Siblings},
		{"email_id", &b.EmailID},
		{"main_contact_number", &b.MainContactNumber},
		{"alternative_contact_number", &b.AlternativeContactNumber},
	}
}

// BiodataColumns returns the column names of Biodata in storage order.
func BiodataColumns() []string {
	var b Biodata
	fields := b.Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Column
	}
	return out
}

// Set assigns a value by column name and reports whether the column exists.
func (b *Biodata) Set(column, value string) bool {
	for _, f := range b.Fields() {
		if f.Column == column {
			*f.Ptr = value
			return true
		}
	}
	return false
}

type Application struct {
	UniqueID string `json:"unique_id"`
	Biodata
	MainPhotoURL string     `json:"main_photo_url"`
	SidePhotoURL string     `json:"side_photo_url"`
	CreatedAt    time.Time  `json:"created_at"`
	ApprovedAt   *time.Time `json:"approved_at"`
}

func (a *Application) State() LifecycleState {
	if a.ApprovedAt != nil {
		return LifecycleState{Stage: StageApproved, At: a.ApprovedAt}
	}
	return LifecycleState{Stage: StagePending}
}

type RejectedApplication struct {
	ID       int64  `json:"id"`
	UniqueID string `json:"unique_id"`
	Biodata
	MainPhotoURL  string    `json:"main_photo_url"`
	SidePhotoURL  string    `json:"side_photo_url"`
	CreatedAt     time.Time `json:"created_at"`
	RejectionNote string    `json:"rejection_note"`
	RejectedAt    time.Time `json:"rejected_at"`
}

func (r *RejectedApplication) State() LifecycleState {
	at := r.RejectedAt
	return LifecycleState{Stage: StageRejected, At: &at, Note: r.RejectionNote}
}

// Photos carries optional base64 images supplied with a submission or edit.
type Photos struct {
	MainBase64 string
	SideBase64 string
	MainRaw    []byte
	SideRaw    []byte
}

func (p Photos) HasMain() bool { return len(p.MainRaw) > 0 || p.MainBase64 != "" }

func (p Photos) HasSide() bool { return len(p.SideRaw) > 0 || p.SideBase64 != "" }

// SubmitRequest is the body of POST /submit-application.
type SubmitRequest struct {
	Biodata
	MainPhotoBase64 string `json:"main_photo_base64"`
	SidePhotoBase64 string `json:"side_photo_base64"`
}

// ApplicationView merges live and rejected records for one contact number.
// Status keeps the legacy wire value ("Approved" for every live row), State
// is the precise lifecycle stage.
type ApplicationView struct {
	UniqueID string `json:"unique_id"`
	Biodata
	MainPhotoURL  string     `json:"main_photo_url"`
	SidePhotoURL  string     `json:"side_photo_url"`
	CreatedAt     time.Time  `json:"created_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	RejectionNote string     `json:"rejection_note,omitempty"`
	RejectedAt    *time.Time `json:"rejected_at,omitempty"`
	Status        string     `json:"status"`
	State         Stage      `json:"state"`
}

type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// GenderYearCount is one row of the approved gender/year aggregate.
type GenderYearCount struct {
	Gender string
	YearCount
}
