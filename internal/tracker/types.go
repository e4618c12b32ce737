package tracker

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the wire layout for occurrence and target dates.
const DateLayout = "2006-01-02"

const displayLayout = "January 02, 2006"

// CategoryAward is the only category with extra weight in year metrics.
const CategoryAward = "Award"

// Known categories offered by the log-entry flow. Free text is accepted as well.
var Categories = []string{
	"Publication",
	CategoryAward,
	"Leadership",
	"Internal Project",
	"Patent",
	"Presentation",
	"Certification",
}

// EvidenceKind describes what backs an achievement.
type EvidenceKind string

const (
	EvidencePDF   EvidenceKind = "pdf"
	EvidenceImage EvidenceKind = "image"
	EvidenceLink  EvidenceKind = "link"
)

// Valid reports whether k is one of the known kinds.
func (k EvidenceKind) Valid() bool {
	switch k {
	case EvidencePDF, EvidenceImage, EvidenceLink:
		return true
	}
	return false
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalInProgress GoalStatus = "in_progress"
	GoalCompleted  GoalStatus = "completed"
)

// FileKind is the kind of an uploaded evidence file.
type FileKind string

const (
	FilePDF   FileKind = "pdf"
	FileImage FileKind = "image"
)

// Blob buckets.
const (
	BucketEvidence = "evidence_vault"
	BucketAvatars  = "avatars"
)

// Achievement is a logged career milestone.
type Achievement struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Title        string       `json:"title"`
	Date         time.Time    `json:"date"`
	DisplayDate  string       `json:"display_date"`
	Category     string       `json:"category"`
	Tag          string       `json:"tag"`
	Impact       string       `json:"impact"`
	EvidenceKind EvidenceKind `json:"evidence_kind"`
	FileName     string       `json:"file_name,omitempty"`
	IsPublic     bool         `json:"is_public"`
	CreatedAt    time.Time    `json:"created_at"`

	// LegacyKey deduplicates rows imported from the legacy cache. Empty for
	// achievements logged through the regular flow.
	LegacyKey string `json:"-"`
}

// Year is the four-digit year the achievement contributes to.
func (a Achievement) Year() string {
	return a.Date.Format("2006")
}

// FileUpload carries raw evidence bytes alongside an achievement.
type FileUpload struct {
	Name   string
	Folder string
	Data   []byte
}

// AchievementInput is what the log-entry flow submits.
type AchievementInput struct {
	Title        string
	Date         time.Time
	Category     string
	Tag          string
	Impact       string
	EvidenceKind EvidenceKind
	FileName     string
	IsPublic     bool
	File         *FileUpload
}

// Validate checks required fields.
func (in AchievementInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.New("title is required")
	}
	if in.Date.IsZero() {
		return errors.New("date is required")
	}
	if in.EvidenceKind != "" && !in.EvidenceKind.Valid() {
		return errors.New("unknown evidence kind")
	}
	return nil
}

// AchievementUpdate is the editable subset of an achievement. Nil fields are left untouched.
type AchievementUpdate struct {
	Title    *string    `json:"title,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Category *string    `json:"category,omitempty"`
	Tag      *string    `json:"tag,omitempty"`
	Impact   *string    `json:"impact,omitempty"`
	IsPublic *bool      `json:"is_public,omitempty"`
}

// Empty reports whether the update carries no field.
func (u AchievementUpdate) Empty() bool {
	return u.Title == nil && u.Date == nil && u.Category == nil && u.Tag == nil && u.Impact == nil && u.IsPublic == nil
}

// Apply merges the update into a and returns the result. The display date follows the date.
func (u AchievementUpdate) Apply(a Achievement) Achievement {
	if u.Title != nil {
		a.Title = *u.Title
	}
	if u.Date != nil {
		a.Date = *u.Date
		a.DisplayDate = DisplayDate(*u.Date)
	}
	if u.Category != nil {
		a.Category = *u.Category
	}
	if u.Tag != nil {
		a.Tag = *u.Tag
	}
	if u.Impact != nil {
		a.Impact = *u.Impact
	}
	if u.IsPublic != nil {
		a.IsPublic = *u.IsPublic
	}
	return a
}

// Goal is a user-defined target.
type Goal struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	TargetDate  *time.Time `json:"target_date,omitempty"`
	Status      GoalStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GoalInput creates a goal.
type GoalInput struct {
	Title       string
	Description string
	TargetDate  *time.Time
}

// GoalUpdate changes goal fields. Nil fields are left untouched.
type GoalUpdate struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	TargetDate  *time.Time  `json:"target_date,omitempty"`
	Status      *GoalStatus `json:"status,omitempty"`
}

// Apply merges the update into g and returns the result.
func (u GoalUpdate) Apply(g Goal) Goal {
	if u.Title != nil {
		g.Title = *u.Title
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.TargetDate != nil {
		td := *u.TargetDate
		g.TargetDate = &td
	}
	if u.Status != nil {
		g.Status = *u.Status
	}
	return g
}

// FileDescriptor describes an evidence blob known to the session.
type FileDescriptor struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       FileKind `json:"kind"`
	UploadedOn string   `json:"uploaded_on"`
	Size       string   `json:"size"`
	Path       string   `json:"path,omitempty"`
	Folder     string   `json:"folder,omitempty"`
}

// Profile is 1:1 with a signed-in identity.
type Profile struct {
	ID             string     `json:"id"`
	DisplayName    string     `json:"display_name"`
	TargetRole     string     `json:"target_role"`
	TargetGoal     string     `json:"target_goal"`
	AvatarPath     string     `json:"avatar_path,omitempty"`
	LastLoggedDate *time.Time `json:"last_logged_date,omitempty"`
}

// Incomplete reports whether the profile still lacks a display name or target role.
func (p Profile) Incomplete() bool {
	return strings.TrimSpace(p.DisplayName) == "" || strings.TrimSpace(p.TargetRole) == ""
}

// ProfileUpdate changes profile fields. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName    *string    `json:"display_name,omitempty"`
	TargetRole     *string    `json:"target_role,omitempty"`
	TargetGoal     *string    `json:"target_goal,omitempty"`
	AvatarPath     *string    `json:"avatar_path,omitempty"`
	LastLoggedDate *time.Time `json:"last_logged_date,omitempty"`
}

// BlobObject is one entry of a blob listing.
type BlobObject struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayDate renders an occurrence date the way the timeline shows it.
func DisplayDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(displayLayout)
}

// ParseDate parses a YYYY-MM-DD date; a full RFC 3339 timestamp is accepted too.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidInput
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidInput
	}
	return t.UTC(), nil
}

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
