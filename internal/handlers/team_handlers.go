package handlers

import (
	"net/http"

	"creatively/internal/handlers/dto"
	"creatively/internal/service"
)

type TeamHandler struct {
	TeamService TeamService
}

func NewTeamHandler(teamService TeamService) TeamHandler {
	return TeamHandler{TeamService: teamService}
}

// ListMembers: по умолчанию только активные, ?all=true показывает и удалённых.
func (s *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.TeamService.List(r.Context(), !queryBool(r, "all"))
	if err != nil {
		handleListError(w, r, err, "members", "list_members")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("members", members))
}

func (s *TeamHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	var request dto.InviteMemberRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	member, err := s.TeamService.Invite(r.Context(), request.Input())
	if err != nil {
		handleError(w, r, err, "invite_member")
		return
	}
	responseWithNotice(w, http.StatusCreated, "Участник добавлен в команду", toPayload("member", member))
}

func (s *TeamHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var request dto.UpdateMemberRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	current, err := s.TeamService.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "update_member")
		return
	}
	member, err := s.TeamService.Update(r.Context(), id, request.Options(current)...)
	if err != nil {
		handleError(w, r, err, "update_member")
		return
	}
	responseWithNotice(w, http.StatusOK, "Данные участника обновлены", toPayload("member", member))
}

// RemoveMember деактивирует участника, а если не вышло, удаляет запись.
func (s *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := s.TeamService.Remove(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "remove_member")
		return
	}
	notice := "Участник удалён из команды"
	if result.Mode == service.RemovalDeactivated {
		notice = "Участник деактивирован"
	}
	responseWithNotice(w, http.StatusOK, notice, toPayload("result", result))
}

func (s *TeamHandler) ForceDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := s.TeamService.ForceDelete(r.Context(), id, queryBool(r, "confirm"))
	if err != nil {
		handleError(w, r, err, "force_delete_member")
		return
	}
	responseWithNotice(w, http.StatusOK, "Участник удалён окончательно", toPayload("result", result))
}
