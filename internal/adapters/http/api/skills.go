package api

import (
	"net/http"

	"github.com/okian/skillpulse/internal/domain/catalog"
	"github.com/okian/skillpulse/pkg/logger"
)

// CatalogDependencies exposes the course skill catalog.
type CatalogDependencies interface {
	Skills(course string) []catalog.Skill
}

// SkillsHandler lists catalog skills.
type SkillsHandler struct {
	deps   CatalogDependencies
	logger logger.Logger
}

// NewSkillsHandler creates a new skills handler.
func NewSkillsHandler(deps CatalogDependencies, log logger.Logger) *SkillsHandler {
	return &SkillsHandler{deps: deps, logger: log}
}

type skillsResponse struct {
	Skills []catalog.Skill `json:"skills"`
}

// HandleListSkills handles GET /skills?course=C. Without course every skill
// is listed in catalog order; with it only that course's skills, by id.
func (h *SkillsHandler) HandleListSkills(w http.ResponseWriter, r *http.Request) {
	skills := h.deps.Skills(r.URL.Query().Get("course"))
	if skills == nil {
		skills = []catalog.Skill{}
	}
	writeJSON(w, http.StatusOK, skillsResponse{Skills: skills})
}
