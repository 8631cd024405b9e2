package storage

import (
	"net/http"

	"goji.io/pat"

	"github.com/commune-gg/commune/web"
)

const maxUploadSize = 5 << 20

var _ web.Plugin = (*Plugin)(nil)

func (p *Plugin) InitWeb() {
	web.RootMux.Handle(pat.Get("/static/uploads/*"),
		http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(confStorageDir.GetString()))))

	web.APIMux.HandleFunc(pat.Post("/me/uploads"), handleUpload)
}

func handleUpload(w http.ResponseWriter, r *http.Request) {
	user := web.ContextUser(r.Context())
	if user == nil {
		web.WriteAPIError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		web.WriteAPIError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	defer file.Close()

	name, err := Put(header.Filename, file)
	if err != nil {
		if err == ErrBadExtension {
			web.WriteAPIError(w, http.StatusBadRequest, err.Error())
			return
		}

		logger.WithError(err).Error("Failed storing upload")
		web.WriteAPIError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	web.WriteJSON(w, http.StatusCreated, map[string]string{
		"name": name,
		"url":  PublicURL(name),
	})
}
