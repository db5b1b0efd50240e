package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"soundscape/cache"
	"soundscape/core/audio"
	"soundscape/core/entitle"
	"soundscape/core/ledger"
	"soundscape/core/render"
	"soundscape/logger"
	"soundscape/model"
)

// renderTimeout bounds a background render; a job that cannot finish within
// it is canceled and refunded.
const renderTimeout = 30 * time.Minute

// downloadExpiry is the lifetime of presigned artifact URLs.
const downloadExpiry = 24 * time.Hour

type exportRequest struct {
	Seed            string            `json:"seed"`
	Mood            string            `json:"mood"`
	DurationMinutes int               `json:"durationMinutes"`
	MasterVolume    float64           `json:"masterVolume"`
	Tracks          []model.TrackSpec `json:"tracks"`
	IdempotencyKey  string            `json:"idempotencyKey"`
}

func (req exportRequest) toMix() (model.Mix, error) {
	if len(req.Tracks) == 0 {
		return model.Mix{}, fmt.Errorf("track list is empty")
	}
	tracks := make([]model.Track, 0, len(req.Tracks))
	for _, s := range req.Tracks {
		t, err := s.ToTrack()
		if err != nil {
			return model.Mix{}, err
		}
		tracks = append(tracks, t)
	}
	master := req.MasterVolume
	if master <= 0 || master > 1 {
		master = 0.8
	}
	return model.Mix{
		Seed:            req.Seed,
		Mood:            req.Mood,
		DurationMinutes: req.DurationMinutes,
		MasterVolume:    master,
		Tracks:          tracks,
	}, nil
}

type jobResponse struct {
	model.ExportJob
	Progress *cache.Progress `json:"progress,omitempty"`
}

// StartExportHandler reserves credits and kicks off a background render.
// Safe to retry with the same idempotency key.
func (h *APIHandler) StartExportHandler(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mix, err := req.toMix()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash := entitle.HashDeviceID(deviceID(r))
	job, err := h.ledger.Start(r.Context(), hash, req.IdempotencyKey, req.Seed, req.DurationMinutes)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if err := h.balances.Invalidate(r.Context(), hash); err != nil {
		logger.Warn("balance invalidation failed", logger.ErrorField(err))
	}

	// An idempotent retry lands here with the original job. The progress key
	// is created with set-if-absent, so concurrent retries elect exactly one
	// render goroutine.
	if h.claimRender(r.Context(), job) {
		go h.runExport(job, mix, hash)
	}

	writeJSON(w, http.StatusAccepted, jobResponse{ExportJob: job})
}

// claimRender elects the caller that renders the job. Whoever creates the
// job's progress record owns the render; everyone else gets false.
func (h *APIHandler) claimRender(ctx context.Context, job model.ExportJob) bool {
	if job.Status != model.JobReserved {
		return false
	}
	won, err := h.progress.SetIfAbsent(ctx, cache.Progress{JobID: job.ID, Status: model.JobReserved})
	if err != nil {
		logger.Warn("progress init failed",
			logger.String("job_id", job.ID), logger.ErrorField(err))
		return false
	}
	return won
}

func (h *APIHandler) writeLedgerError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrInvalidDuration) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ice, ok := ledger.IsInsufficientCredits(err); ok {
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":   "insufficient credits",
			"credits": ice.Balance,
			"cost":    ice.Cost,
		})
		return
	}
	if errors.Is(err, ledger.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "export job not found")
		return
	}
	if errors.Is(err, ledger.ErrStatusConflict) {
		writeError(w, http.StatusConflict, "export job already finalized")
		return
	}
	logger.Error("ledger operation failed", logger.ErrorField(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// runExport renders, uploads and completes one job. Any failure cancels the
// reservation so the credits flow back.
func (h *APIHandler) runExport(job model.ExportJob, mix model.Mix, deviceHash string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	fail := func(stage string, err error) {
		logger.Error("export failed, canceling reservation",
			logger.String("job_id", job.ID), logger.String("stage", stage), logger.ErrorField(err))
		if _, cerr := h.ledger.Cancel(ctx, job.ID); cerr != nil {
			logger.Error("compensating cancel failed",
				logger.String("job_id", job.ID), logger.ErrorField(cerr))
		}
		if perr := h.progress.Set(ctx, cache.Progress{
			JobID: job.ID, Status: model.JobCanceled, Error: stage,
		}); perr != nil {
			logger.Warn("progress update failed", logger.ErrorField(perr))
		}
		if berr := h.balances.Invalidate(ctx, deviceHash); berr != nil {
			logger.Warn("balance invalidation failed", logger.ErrorField(berr))
		}
	}

	cert := render.Certificate{
		JobID:    job.ID,
		IssuedAt: time.Now().UTC(),
		TermsURL: h.cfg.SiteURL + "/terms",
		Mix:      mix,
	}
	tags := audio.InfoTags{
		Title:        fmt.Sprintf("Soundscape %s %dm", mix.Mood, mix.DurationMinutes),
		Product:      "Soundscape",
		Software:     "Soundscape renderer",
		Comment:      cert.CommentTag(),
		CreationDate: cert.IssuedAt.Format("2006-01-02"),
	}

	wav, err := h.renderer.RenderWAV(ctx, mix, tags, func(done, total int) {
		if perr := h.progress.Set(ctx, cache.Progress{
			JobID: job.ID, Status: model.JobReserved, ChunksDone: done, ChunksTotal: total,
		}); perr != nil {
			logger.Warn("progress update failed", logger.ErrorField(perr))
		}
	})
	if err != nil {
		fail("render", err)
		return
	}

	if err := h.exports.PutWAV(ctx, job.ID, wav); err != nil {
		fail("upload", err)
		return
	}
	if err := h.exports.PutCertificate(ctx, job.ID, cert.Text()); err != nil {
		fail("certificate", err)
		return
	}

	completed, err := h.ledger.Complete(ctx, job.ID)
	if err != nil {
		fail("complete", err)
		return
	}

	if perr := h.progress.Set(ctx, cache.Progress{
		JobID: job.ID, Status: completed.Status,
		ChunksDone: 1, ChunksTotal: 1,
	}); perr != nil {
		logger.Warn("progress update failed", logger.ErrorField(perr))
	}
	logger.Info("export finished",
		logger.String("job_id", job.ID),
		logger.Int("bytes", len(wav)),
		logger.Duration("took", time.Since(start)))
}

// ownedJob loads a job and hides it from any device other than its owner.
func (h *APIHandler) ownedJob(r *http.Request, jobID string) (model.ExportJob, error) {
	job, err := h.ledger.Job(r.Context(), jobID)
	if err != nil {
		return model.ExportJob{}, err
	}
	if job.DeviceID != entitle.HashDeviceID(deviceID(r)) {
		return model.ExportJob{}, ledger.ErrJobNotFound
	}
	return job, nil
}

// ExportStatusHandler returns the job record plus live render progress.
func (h *APIHandler) ExportStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	job, err := h.ownedJob(r, jobID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	resp := jobResponse{ExportJob: job}
	if p, ok, perr := h.progress.Get(r.Context(), jobID); perr == nil && ok {
		resp.Progress = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompleteExportHandler acknowledges a finished export. Repeating the call
// for a completed job returns the same record; a canceled job is a conflict.
func (h *APIHandler) CompleteExportHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if _, err := h.ownedJob(r, jobID); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	job, err := h.ledger.Complete(r.Context(), jobID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{ExportJob: job})
}

// CancelExportHandler releases a pending reservation.
func (h *APIHandler) CancelExportHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if _, err := h.ownedJob(r, jobID); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	job, err := h.ledger.Cancel(r.Context(), jobID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if err := h.balances.Invalidate(r.Context(), job.DeviceID); err != nil {
		logger.Warn("balance invalidation failed", logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, jobResponse{ExportJob: job})
}

// ExportDownloadHandler mints presigned URLs for a completed export's
// artifacts.
func (h *APIHandler) ExportDownloadHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	job, err := h.ownedJob(r, jobID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if job.Status != model.JobCompleted {
		writeError(w, http.StatusConflict, "export not completed")
		return
	}

	audioURL, err := h.exports.PresignedWAV(r.Context(), jobID, downloadExpiry)
	if err != nil {
		logger.Error("presign failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to mint download URL")
		return
	}
	certURL, err := h.exports.PresignedCertificate(r.Context(), jobID, downloadExpiry)
	if err != nil {
		logger.Error("presign failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to mint download URL")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"audioUrl":       audioURL,
		"certificateUrl": certURL,
	})
}
