package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetward/fleetward/internal/master"
	"github.com/fleetward/fleetward/internal/models"
)

func (h *Handlers) listJobs(c *gin.Context) {
	if !requirePermission(c, "job.list") {
		return
	}
	jobs, err := h.Store.ListJobs(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handlers) getJob(c *gin.Context) {
	if !requirePermission(c, "job.get") {
		return
	}
	job, err := h.Store.GetJobByJid(c.Request.Context(), c.Param("jid"))
	if err != nil {
		fail(c, err)
		return
	}
	if job == nil {
		fail(c, models.NewAPIError(models.KindNotFound, "job not found"))
		return
	}
	returns, err := h.Store.ListJobReturnsByJob(c.Request.Context(), job.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "returns": returns})
}

type runJobRequest struct {
	Mode       string            `json:"mode"`
	Target     string            `json:"target"`
	TargetType string            `json:"targetType"`
	Function   string            `json:"function"`
	Args       []string          `json:"args"`
	Kwargs     map[string]string `json:"kwargs"`
	BatchSize  string            `json:"batchSize"`
}

// runJob dispatches a job to the master. The Job row itself is recorded by the event loop
// once the master's salt/job/<jid>/new event for this run arrives (§4.6), not here — this
// handler only kicks the run off and reports the raw master response.
func (h *Handlers) runJob(c *gin.Context) {
	if !requirePermission(c, "job.run") {
		return
	}
	var req runJobRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Target == "" || req.Function == "" {
		invalid(c, "invalid job payload")
		return
	}

	status := mustStatus(c)
	job := master.RunJob{
		Mode:       master.RunMode(req.Mode),
		Target:     req.Target,
		TargetType: master.TargetType(req.TargetType),
		Function:   req.Function,
		Args:       req.Args,
		Kwargs:     req.Kwargs,
		BatchSize:  req.BatchSize,
	}
	if job.Mode == "" {
		job.Mode = master.RunLocal
	}
	if job.TargetType == "" {
		job.TargetType = master.TargetGlob
	}

	var result interface{}
	err := h.Token.CallMaster(c.Request.Context(), status, func(tok *models.MasterToken) error {
		var callErr error
		result, callErr = h.Master.RunJob(c.Request.Context(), tok, job)
		return callErr
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}
