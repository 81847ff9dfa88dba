package server

import (
	"encoding/json"

	"sitework/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type CreateUserRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty" enum:"user,manager,root"`
}

type CreateProjectRequest struct {
	ProjectID    string `json:"project_id,omitempty"`
	ProjectName  string `json:"project_name"`
	ForemanID    string `json:"foreman_id,omitempty"`
	ForemanEmail string `json:"foreman_email,omitempty"`
}

type ShiftRequest struct {
	ProjectID  string   `json:"project_id,omitempty"`
	TaskIDs    []string `json:"task_ids,omitempty"`
	SubtaskIDs []string `json:"subtask_ids,omitempty"`
}

type AttachReportRequest struct {
	StageID    string              `json:"stage_id"`
	WorkKindID string              `json:"work_kind_id,omitempty"`
	WorkTypeID string              `json:"work_type_id"`
	TaskID     string              `json:"task_id"`
	SubtaskID  string              `json:"subtask_id"`
	Links      []domain.ReportLink `json:"links"`
}

// SetFieldRequest carries the value as raw JSON so any shape passes through
// to the structural writer untouched.
type SetFieldRequest struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type CreateBrigadeRequest struct {
	Name    string   `json:"name,omitempty"`
	Members []string `json:"members"`
}

// Response payloads

type ShiftResponse struct {
	Result string `json:"result"`
}

type ShiftStatusResponse struct {
	Status string `json:"status" enum:"working,not_working"`
}

type UserResponse struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	Active    bool     `json:"active"`
	Projects  []string `json:"projects,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		Projects:  u.Projects,
		CreatedAt: u.CreatedAt,
	}
}
