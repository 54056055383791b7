package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/models"
	"progitek/server/internal/services"
)

// MissionController exposes missions and their interventions.
type MissionController struct {
	missions *services.MissionService
}

// NewMissionController creates a MissionController.
func NewMissionController(missions *services.MissionService) *MissionController {
	return &MissionController{missions: missions}
}

type missionRequest struct {
	ClientID    uint                 `json:"client_id" binding:"required"`
	Title       string               `json:"title" binding:"required"`
	Description string               `json:"description"`
	Status      models.MissionStatus `json:"status"`
	StartDate   *flexTime            `json:"start_date"`
	EndDate     *flexTime            `json:"end_date"`
}

func (r missionRequest) input() services.MissionInput {
	return services.MissionInput{
		ClientID:    r.ClientID,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		StartDate:   r.StartDate.ptr(),
		EndDate:     r.EndDate.ptr(),
	}
}

type interventionRequest struct {
	TechnicianID    uint                      `json:"technician_id" binding:"required"`
	ScheduledAt     flexTime                  `json:"scheduled_at"`
	DurationMinutes int                       `json:"duration_minutes"`
	Report          string                    `json:"report"`
	Status          models.InterventionStatus `json:"status"`
}

func (r interventionRequest) input() services.InterventionInput {
	return services.InterventionInput{
		TechnicianID:    r.TechnicianID,
		ScheduledAt:     r.ScheduledAt.Time,
		DurationMinutes: r.DurationMinutes,
		Report:          r.Report,
		Status:          r.Status,
	}
}

// GetMissions lists missions.
// GET /api/v1/missions?client_id=&status=&limit=&offset=
func (mc *MissionController) GetMissions(c *gin.Context) {
	f := services.MissionFilter{
		ClientID: queryUint(c, "client_id"),
		Status:   models.MissionStatus(c.Query("status")),
		Limit:    queryInt(c, "limit"),
		Offset:   queryInt(c, "offset"),
	}
	missions, total, err := mc.missions.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, Page{Items: missions, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// GetMission returns a mission with its interventions.
// GET /api/v1/missions/:id
func (mc *MissionController) GetMission(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	mission, err := mc.missions.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, mission)
}

// CreateMission stores a mission.
// POST /api/v1/missions
func (mc *MissionController) CreateMission(c *gin.Context) {
	var req missionRequest
	if !bindJSON(c, &req) {
		return
	}
	mission, err := mc.missions.Create(c.Request.Context(), actorFrom(c), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, mission)
}

// UpdateMission replaces a mission.
// PUT /api/v1/missions/:id
func (mc *MissionController) UpdateMission(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req missionRequest
	if !bindJSON(c, &req) {
		return
	}
	mission, err := mc.missions.Update(c.Request.Context(), actorFrom(c), id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, mission)
}

// GetInterventions lists the interventions of a mission.
// GET /api/v1/missions/:id/interventions
func (mc *MissionController) GetInterventions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := mc.missions.ListInterventions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, list)
}

// AddIntervention schedules a technician visit.
// POST /api/v1/missions/:id/interventions
func (mc *MissionController) AddIntervention(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req interventionRequest
	if !bindJSON(c, &req) {
		return
	}
	intervention, err := mc.missions.AddIntervention(c.Request.Context(), actorFrom(c), id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, intervention)
}

// UpdateIntervention changes an intervention, typically its report and status.
// PUT /api/v1/interventions/:id
func (mc *MissionController) UpdateIntervention(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req interventionRequest
	if !bindJSON(c, &req) {
		return
	}
	intervention, err := mc.missions.UpdateIntervention(c.Request.Context(), actorFrom(c), id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, intervention)
}
