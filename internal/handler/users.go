package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/eyewear-store/internal/domain/user"
)

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	users, total, err := h.Users.List(r.Context(), limit, offset)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, total, effectiveLimit(limit), offset, func(e *jx.Encoder) {
			for i := range users {
				encodeUser(e, &users[i])
			}
		})
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeUser(e, u)
	})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	u := &user.User{}
	if err := h.decodeBody(w, r, userDecoder(u)); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Users.Create(r.Context(), u); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeUser(e, u)
	})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	u := &user.User{}
	if err := h.decodeBody(w, r, userDecoder(u)); err != nil {
		fail(w, r, err)
		return
	}
	u.ID = r.PathValue("id")
	if err := h.Users.Update(r.Context(), u); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeUser(e, u)
	})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Delete(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// issueKey returns the raw key exactly once.
func (h *Handler) issueKey(w http.ResponseWriter, r *http.Request) {
	var (
		name   string
		scopes []string
	)
	if err := h.decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			name, err = d.Str()
		case "scopes":
			scopes, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	raw, k, err := h.Users.IssueKey(r.Context(), r.PathValue("id"), name, scopes)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(k.ID)
		e.FieldStart("user_id")
		e.Str(k.UserID)
		e.FieldStart("name")
		e.Str(k.Name)
		e.FieldStart("scopes")
		encodeStrings(e, k.Scopes)
		e.FieldStart("key")
		e.Str(raw)
		e.FieldStart("created_at")
		encodeTime(e, k.CreatedAt)
		e.ObjEnd()
	})
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("role")
	e.Str(string(u.Role))
	e.FieldStart("created_at")
	encodeTime(e, u.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, u.UpdatedAt)
	e.ObjEnd()
}

func userDecoder(u *user.User) func(d *jx.Decoder, key string) error {
	return func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			u.Email, err = d.Str()
		case "name":
			u.Name, err = d.Str()
		case "role":
			var role string
			role, err = d.Str()
			u.Role = user.Role(role)
		default:
			err = d.Skip()
		}
		return err
	}
}
