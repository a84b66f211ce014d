package orchestrator

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// handlePreview enhances the first pages of an upload and returns the PDF in
// the response body.
func (o *Orchestrator) handlePreview(w http.ResponseWriter, r *http.Request) {
	up, err := o.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := parseStyle(r)
	if err != nil {
		writeError(w, err)
		return
	}

	release, ok := o.deps.Slots.TryAcquire()
	if !ok {
		w.Header().Set("Retry-After", "5")
		http.Error(w, "too many previews in progress", http.StatusServiceUnavailable)
		return
	}
	defer release()

	out, err := o.deps.Assembler.Assemble(r.Context(), up.data, st, o.opts.PreviewPages)
	if err != nil {
		log.Warn().Err(err).Str("filename", up.name).Msg("preview failed")
		writeError(w, err)
		return
	}
	w.Header().Set("X-Preview-Pages", strconv.Itoa(o.opts.PreviewPages))
	writePDF(w, "preview_"+up.name, out)
}
