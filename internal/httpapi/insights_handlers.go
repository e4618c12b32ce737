package httpapi

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"meritlog.org/internal/insights"
	"meritlog.org/internal/tracker"
)

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// yearParam reads ?year=, defaulting to the current year.
func (a *API) yearParam(r *http.Request) (string, error) {
	year := strings.TrimSpace(r.URL.Query().Get("year"))
	if year == "" {
		return a.now().Format("2006"), nil
	}
	if !yearPattern.MatchString(year) {
		return "", errors.New("year must be a four-digit year")
	}
	return year, nil
}

func (a *API) getStreak(w http.ResponseWriter, r *http.Request) {
	p, _ := a.svc.Store.Profile()
	last := insights.LastLogged(p, a.svc.Store.Achievements())
	writeJSON(w, http.StatusOK, insights.ComputeStreak(last, a.now()))
}

func (a *API) getGaps(w http.ResponseWriter, r *http.Request) {
	year, err := a.yearParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, insights.GapAnalysis(year, a.svc.Store.Achievements()))
}

func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	year, err := a.yearParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, insights.YearReport(year, a.svc.Store.Achievements(), a.svc.Store.Metrics()))
}

// getPortfolio is public: it reads the owner's achievements straight from the remote
// store and exposes only the public ones.
func (a *API) getPortfolio(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.PathValue("userId"))
	if uid == "" {
		writeError(w, r, http.StatusNotFound, "portfolio not found")
		return
	}
	items, err := a.svc.Remote.Achievements(r.Context()).List(r.Context(), uid)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insights.PublicPortfolio(uid, items))
}

var publicBuckets = map[string]bool{
	tracker.BucketEvidence: true,
	tracker.BucketAvatars:  true,
}

// serveBlob backs the public URLs handed out for evidence files and avatars.
func (a *API) serveBlob(w http.ResponseWriter, r *http.Request) {
	bucket, p := r.PathValue("bucket"), r.PathValue("path")
	if !publicBuckets[bucket] || p == "" || strings.Contains(p, "..") {
		writeError(w, r, http.StatusNotFound, "object not found")
		return
	}
	data, contentType, err := a.svc.Remote.Blobs(r.Context(), bucket).Download(r.Context(), p)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
