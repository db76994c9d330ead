package chi

import (
	"net/http"

	"github.com/nkkko/lista/internal/api/models"
	"github.com/nkkko/lista/internal/api/response"
	"github.com/nkkko/lista/internal/api/validation"
	"github.com/nkkko/lista/pkg/proto"
)

func (a *ChiAPI) handleListLists(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	lists, err := a.content.Lists(r.Context(), user.Id)
	if err != nil {
		a.logger.Error().Err(err).Str("user_id", user.Id.String()).Msg("Failed to list lists")
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, lists)
}

func (a *ChiAPI) handleCreateList(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req models.CreateListRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	list, err := a.content.CreateList(r.Context(), user.Id, req.Title)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, list)
}

func (a *ChiAPI) handleReorderLists(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req models.ReorderRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	if err := a.content.Reorder(r.Context(), user.Id, req); err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, r)
}

func (a *ChiAPI) handleGetList(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		list, err := a.content.List(r.Context(), user.Id, listID)
		if err != nil {
			response.Error(w, r, err)
			return
		}
		response.JSON(w, r, http.StatusOK, list)
	})(w, r)
}

func (a *ChiAPI) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		var req models.UpdateListRequest
		if err := validation.ParseAndValidate(r, &req); err != nil {
			response.Error(w, r, err)
			return
		}

		list, err := a.content.RenameList(r.Context(), user.Id, listID, req.Title)
		if err != nil {
			response.Error(w, r, err)
			return
		}

		a.publishSummary(list, user, user.Name+` renamed the list to "`+list.Title+`"`)
		response.JSON(w, r, http.StatusOK, list)
	})(w, r)
}

func (a *ChiAPI) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		list, err := a.content.DeleteList(r.Context(), user.Id, listID)
		if err != nil {
			response.Error(w, r, err)
			return
		}

		a.publishDeleted(list, user)
		response.OK(w, r)
	})(w, r)
}

func (a *ChiAPI) handleCopyList(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		list, err := a.content.CopyList(r.Context(), user.Id, listID)
		if err != nil {
			response.Error(w, r, err)
			return
		}
		response.JSON(w, r, http.StatusCreated, list)
	})(w, r)
}

func (a *ChiAPI) handleLeaveList(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		list, err := a.content.LeaveList(r.Context(), user.Id, listID)
		if err != nil {
			response.Error(w, r, err)
			return
		}

		a.publishShare(list, user, user.Id, proto.ShareActionLeft, user.Name+` left "`+list.Title+`"`)
		response.OK(w, r)
	})(w, r)
}

func (a *ChiAPI) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	a.withList(func(w http.ResponseWriter, r *http.Request, user *proto.User, listID proto.ID) {
		memberID, err := pathID(r, "userId")
		if err != nil {
			response.Error(w, r, err)
			return
		}

		list, err := a.content.RemoveMember(r.Context(), user.Id, listID, memberID)
		if err != nil {
			response.Error(w, r, err)
			return
		}

		a.publishShare(list, user, memberID, proto.ShareActionRemoved, user.Name+` removed you from "`+list.Title+`"`)
		response.OK(w, r)
	})(w, r)
}

func (a *ChiAPI) handleAcceptShare(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req models.AcceptShareRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	list, joined, err := a.content.AcceptShare(r.Context(), user, req.Code)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if joined {
		a.publishShare(list, user, user.Id, proto.ShareActionJoined, user.Name+` joined "`+list.Title+`"`)
	}
	response.JSON(w, r, http.StatusOK, list)
}
