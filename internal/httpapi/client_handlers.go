package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/clients"
	"cambria.dev/dashboard/internal/sheets"
	"cambria.dev/dashboard/internal/uploads"
)

const multipartMemory = 8 << 20

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Clients.List(r.Context(), sessionUser(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"clients": list})
}

func (a *API) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := a.svc.Clients.Get(r.Context(), sessionUser(r), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"client": c})
}

func (a *API) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var req clients.Update
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.svc.Clients.Update(r.Context(), sessionUser(r), chi.URLParam(r, "code"), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "UPDATE_CLIENT", "clients", c.Code, c.Name, nil)
	writeSuccess(w, http.StatusOK, map[string]any{"client": c})
}

// handleExtractSheet reads an uploaded CSV or JSON file as one worksheet tab.
func (a *API) handleExtractSheet(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := clients.Authorize(sessionUser(r), code, auth.LevelRead); err != nil {
		handleServiceError(w, r, err)
		return
	}
	data, name, contentType, err := readUpload(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tab := r.FormValue("tabName")
	if strings.TrimSpace(tab) == "" {
		tab = name
	}
	grid, err := sheets.Open(name, contentType, data)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	rows, err := sheets.Extract(grid, tab)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "EXTRACT_SHEET", "clients", code, tab, map[string]any{
		"fileName": name,
		"rows":     len(rows),
	})
	writeSuccess(w, http.StatusOK, map[string]any{"tabName": tab, "rows": rows})
}

func (a *API) handleListUploads(w http.ResponseWriter, r *http.Request) {
	if a.svc.Uploads == nil {
		writeError(w, r, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	list, err := a.svc.Uploads.List(r.Context(), sessionUser(r), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"uploads": list})
}

func (a *API) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	if a.svc.Uploads == nil {
		writeError(w, r, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	code := chi.URLParam(r, "code")
	user := sessionUser(r)
	if err := clients.Authorize(user, code, auth.LevelWrite); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	up, err := a.svc.Uploads.Put(r.Context(), user, code, header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "UPLOAD_FILE", "clients", code, up.FileName, map[string]any{
		"key":  up.Key,
		"size": up.Size,
	})
	writeSuccess(w, http.StatusCreated, map[string]any{"upload": up})
}

func readUpload(r *http.Request) ([]byte, string, string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", "", errors.New("multipart form with a file field is required")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", errors.New("file field is required")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, uploads.MaxSize+1))
	if err != nil {
		return nil, "", "", err
	}
	if len(data) > uploads.MaxSize {
		return nil, "", "", errors.New("file is too large")
	}
	return data, header.Filename, header.Header.Get("Content-Type"), nil
}
