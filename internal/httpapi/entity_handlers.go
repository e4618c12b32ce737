package httpapi

import (
	"net/http"
	"strings"

	"meritlog.org/internal/tracker"
)

type fileRequest struct {
	Name   string `json:"name"`
	Folder string `json:"folder"`
	Data   []byte `json:"data"` // base64 in JSON
}

type createAchievementRequest struct {
	Title        string       `json:"title"`
	Date         string       `json:"date"`
	Category     string       `json:"category"`
	Tag          string       `json:"tag"`
	Impact       string       `json:"impact"`
	EvidenceKind string       `json:"evidence_kind"`
	FileName     string       `json:"file_name"`
	IsPublic     bool         `json:"is_public"`
	File         *fileRequest `json:"file,omitempty"`
}

type updateAchievementRequest struct {
	Title    *string `json:"title"`
	Date     *string `json:"date"`
	Category *string `json:"category"`
	Tag      *string `json:"tag"`
	Impact   *string `json:"impact"`
	IsPublic *bool   `json:"is_public"`
}

type createGoalRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	TargetDate  *string `json:"target_date"`
}

type updateGoalRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	TargetDate  *string `json:"target_date"`
	Status      *string `json:"status"`
}

// updateProfileRequest omits the avatar path, which only the avatar upload sets.
type updateProfileRequest struct {
	DisplayName    *string `json:"display_name"`
	TargetRole     *string `json:"target_role"`
	TargetGoal     *string `json:"target_goal"`
	LastLoggedDate *string `json:"last_logged_date"`
}

type profileResponse struct {
	tracker.Profile
	Loaded    bool   `json:"loaded"`
	Complete  bool   `json:"complete"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type fileResponse struct {
	tracker.FileDescriptor
	URL string `json:"url,omitempty"`
}

func (a *API) listAchievements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.svc.Store.Achievements()})
}

func (a *API) createAchievement(w http.ResponseWriter, r *http.Request) {
	var req createAchievementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	date, err := tracker.ParseDate(req.Date)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	in := tracker.AchievementInput{
		Title:        req.Title,
		Date:         date,
		Category:     strings.TrimSpace(req.Category),
		Tag:          strings.TrimSpace(req.Tag),
		Impact:       req.Impact,
		EvidenceKind: tracker.EvidenceKind(strings.ToLower(strings.TrimSpace(req.EvidenceKind))),
		FileName:     req.FileName,
		IsPublic:     req.IsPublic,
	}
	if req.File != nil {
		in.File = &tracker.FileUpload{Name: req.File.Name, Folder: req.File.Folder, Data: req.File.Data}
	}
	created, err := a.svc.Store.AddAchievement(r.Context(), in)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) updateAchievement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := a.svc.Store.Achievement(id); !ok {
		writeError(w, r, http.StatusNotFound, "achievement not found")
		return
	}
	var req updateAchievementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := tracker.AchievementUpdate{
		Title:    req.Title,
		Category: req.Category,
		Tag:      req.Tag,
		Impact:   req.Impact,
		IsPublic: req.IsPublic,
	}
	if req.Date != nil {
		d, err := tracker.ParseDate(*req.Date)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		upd.Date = &d
	}
	if err := a.svc.Store.UpdateAchievement(r.Context(), id, upd); err != nil {
		handleStoreError(w, r, err)
		return
	}
	updated, _ := a.svc.Store.Achievement(id)
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteAchievement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := a.svc.Store.Achievement(id); !ok {
		writeError(w, r, http.StatusNotFound, "achievement not found")
		return
	}
	if err := a.svc.Store.DeleteAchievement(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listGoals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.svc.Store.Goals()})
}

func (a *API) createGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := parseOptionalDate(req.TargetDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "target_date must be YYYY-MM-DD")
		return
	}
	created, err := a.svc.Store.AddGoal(r.Context(), tracker.GoalInput{
		Title:       req.Title,
		Description: req.Description,
		TargetDate:  target,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) updateGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := parseOptionalDate(req.TargetDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "target_date must be YYYY-MM-DD")
		return
	}
	upd := tracker.GoalUpdate{Title: req.Title, Description: req.Description, TargetDate: target}
	if req.Status != nil {
		st := tracker.GoalStatus(*req.Status)
		upd.Status = &st
	}
	if err := a.svc.Store.UpdateGoal(r.Context(), id, upd); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.writeGoal(w, r, id)
}

func (a *API) toggleGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.svc.Store.ToggleGoal(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.writeGoal(w, r, id)
}

func (a *API) writeGoal(w http.ResponseWriter, r *http.Request, id string) {
	for _, g := range a.svc.Store.Goals() {
		if g.ID == id {
			writeJSON(w, http.StatusOK, g)
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "goal not found")
}

func (a *API) deleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Store.DeleteGoal(r.Context(), r.PathValue("id")); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listFiles(w http.ResponseWriter, r *http.Request) {
	files := a.svc.Store.Files()
	items := make([]fileResponse, 0, len(files))
	for _, fd := range files {
		items = append(items, fileResponse{FileDescriptor: fd, URL: a.svc.Store.FileURL(r.Context(), fd)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) deleteFile(w http.ResponseWriter, r *http.Request) {
	fd, ok := a.svc.Store.File(r.PathValue("id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "file not found")
		return
	}
	if err := a.svc.Store.DeleteFile(r.Context(), fd); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	a.writeProfile(w, r)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	last, err := parseOptionalDate(req.LastLoggedDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "last_logged_date must be YYYY-MM-DD")
		return
	}
	upd := tracker.ProfileUpdate{
		DisplayName:    req.DisplayName,
		TargetRole:     req.TargetRole,
		TargetGoal:     req.TargetGoal,
		LastLoggedDate: last,
	}
	if err := a.svc.Store.UpdateProfile(r.Context(), upd); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.writeProfile(w, r)
}

func (a *API) refreshProfile(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Store.RefreshProfile(r.Context()); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.writeProfile(w, r)
}

func (a *API) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	url, err := a.svc.Store.UploadAvatar(r.Context(), req.Name, req.Data)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"avatar_url": url})
}

func (a *API) writeProfile(w http.ResponseWriter, r *http.Request) {
	p, loaded := a.svc.Store.Profile()
	writeJSON(w, http.StatusOK, profileResponse{
		Profile:   p,
		Loaded:    loaded,
		Complete:  loaded && !p.Incomplete(),
		AvatarURL: a.svc.Store.AvatarURL(r.Context()),
	})
}

func (a *API) getMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"years":   a.svc.Store.Aggregator().Years(),
		"metrics": a.svc.Store.Metrics(),
	})
}
