package admin

import (
	"net/http"

	"github.com/getmockd/interceptd/pkg/httputil"
)

func (a *API) handleListFolders(w http.ResponseWriter, _ *http.Request) {
	folders, err := a.library.Folders()
	if err != nil {
		writeStoreError(w, a.log, "list recording folders", err)
		return
	}
	httputil.WriteOK(w, map[string]any{"folders": folders})
}

func (a *API) handleListFiles(w http.ResponseWriter, r *http.Request) {
	folder := r.PathValue("folder")
	files, err := a.library.Files(folder)
	if err != nil {
		writeStoreError(w, a.log, "list recordings", err)
		return
	}
	httputil.WriteOK(w, map[string]any{"folder": folder, "files": files})
}

func (a *API) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := a.library.Read(r.PathValue("folder"), r.PathValue("path"))
	if err != nil {
		writeStoreError(w, a.log, "read recording", err)
		return
	}
	httputil.WriteOK(w, rec)
}

func (a *API) handlePutRecording(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	folder, path := r.PathValue("folder"), r.PathValue("path")
	if err := a.library.Write(folder, path, data); err != nil {
		writeStoreError(w, a.log, "write recording", err)
		return
	}
	rec, err := a.library.Read(folder, path)
	if err != nil {
		writeStoreError(w, a.log, "read recording", err)
		return
	}
	httputil.WriteOK(w, rec)
}

func (a *API) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	if err := a.library.Delete(r.PathValue("folder"), r.PathValue("path")); err != nil {
		writeStoreError(w, a.log, "delete recording", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
