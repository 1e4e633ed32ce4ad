package handlers

import (
	"net/http"

	"creatively/internal/handlers/dto"
)

type ProfileHandler struct {
	ProfileService ProfileService
}

func NewProfileHandler(profileService ProfileService) ProfileHandler {
	return ProfileHandler{ProfileService: profileService}
}

func (s *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.ProfileService.Get(r.Context())
	if err != nil {
		handleError(w, r, err, "get_profile")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("profile", profile))
}

func (s *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var request dto.UpdateProfileRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	current, err := s.ProfileService.Get(r.Context())
	if err != nil {
		handleError(w, r, err, "update_profile")
		return
	}
	profile, err := s.ProfileService.Update(r.Context(), request.Options(current)...)
	if err != nil {
		handleError(w, r, err, "update_profile")
		return
	}
	responseWithNotice(w, http.StatusOK, "Настройки сохранены", toPayload("profile", profile))
}
