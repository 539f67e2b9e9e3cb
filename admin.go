package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/rs/zerolog/log"

	"evermoment/internal/catalog"
	"evermoment/internal/editor"
	"evermoment/internal/removebg"
)

var adminImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

func (a *WebApp) adminRoutes(r fiber.Router) {
	r.Use(keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), []byte(a.config.AdminToken)) == 1 {
				return true, nil
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(http.StatusUnauthorized).JSON(errorResponse{Error: "Token inválido o expirado"})
		},
	}))

	r.Get("/backgrounds", func(c *fiber.Ctx) error {
		entries, err := a.config.Store.All(c.UserContext())
		if err != nil {
			return err
		}
		return ok(c, http.StatusOK, entries)
	})
	r.Post("/backgrounds", a.createBackground)
	r.Patch("/backgrounds/:id", a.updateBackground)
	r.Delete("/backgrounds/:id", a.deleteBackground)
	r.Put("/backgrounds/order", func(c *fiber.Ctx) error {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "Cuerpo inválido")
		}
		if len(req.IDs) == 0 {
			return &editor.ValidationError{Message: "No hay datos para actualizar"}
		}
		if err := a.config.Store.Reorder(c.UserContext(), req.IDs); err != nil {
			return err
		}
		entries, err := a.config.Store.All(c.UserContext())
		if err != nil {
			return err
		}
		return ok(c, http.StatusOK, entries)
	})
}

func (a *WebApp) createBackground(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return &editor.ValidationError{Message: "El nombre es requerido"}
	}
	upload, err := a.readUpload(c, "image")
	if err != nil {
		var v *editor.ValidationError
		if errors.As(err, &v) && v.Message == "No se proporcionó imagen" {
			return &editor.ValidationError{Message: "La imagen es requerida"}
		}
		return err
	}
	ref, err := a.saveMedia(upload)
	if err != nil {
		return err
	}

	active := true
	if v := c.FormValue("active"); v != "" {
		active = v == "true"
	}
	entry, err := a.config.Store.Create(c.UserContext(), name, ref, active)
	if err != nil {
		a.removeMedia(c, ref)
		return err
	}
	log.Ctx(c.UserContext()).Info().Str("id", entry.ID).Str("name", entry.Name).Msg("background created")
	return ok(c, http.StatusCreated, entry)
}

// updateBackground accepts a JSON patch, or a multipart form whose fields
// mirror the patch plus an optional replacement "image".
func (a *WebApp) updateBackground(c *fiber.Ctx) error {
	id := c.Params("id")
	var p catalog.Patch
	var newRef string

	if form, err := c.MultipartForm(); err == nil {
		if v := form.Value["name"]; len(v) > 0 {
			p.Name = &v[0]
		}
		if v := form.Value["active"]; len(v) > 0 {
			active := v[0] == "true"
			p.Active = &active
		}
		if v := form.Value["display_order"]; len(v) > 0 {
			n, err := strconv.Atoi(v[0])
			if err != nil {
				return &editor.ValidationError{Field: "display_order", Message: "must be an integer"}
			}
			p.DisplayOrder = &n
		}
		if len(form.File["image"]) > 0 {
			upload, err := a.readUpload(c, "image")
			if err != nil {
				return err
			}
			if newRef, err = a.saveMedia(upload); err != nil {
				return err
			}
			p.ImageRef = &newRef
		}
	} else if err := c.BodyParser(&p); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Cuerpo inválido")
	}

	if p.Name == nil && p.Active == nil && p.DisplayOrder == nil && p.ImageRef == nil {
		return &editor.ValidationError{Message: "No hay datos para actualizar"}
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		if newRef != "" {
			a.removeMedia(c, newRef)
		}
		return &editor.ValidationError{Message: "El nombre es requerido"}
	}

	var oldRef string
	if newRef != "" {
		existing, err := a.config.Store.Get(c.UserContext(), id)
		if err != nil {
			a.removeMedia(c, newRef)
			return err
		}
		oldRef = existing.ImageRef
	}
	entry, err := a.config.Store.Update(c.UserContext(), id, p)
	if err != nil {
		if newRef != "" {
			a.removeMedia(c, newRef)
		}
		return err
	}
	if oldRef != "" {
		a.removeMedia(c, oldRef)
	}
	return ok(c, http.StatusOK, entry)
}

func (a *WebApp) deleteBackground(c *fiber.Ctx) error {
	entry, err := a.config.Store.Delete(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	a.removeMedia(c, entry.ImageRef)
	log.Ctx(c.UserContext()).Info().Str("id", entry.ID).Msg("background deleted")
	return ok(c, http.StatusOK, fiber.Map{"id": entry.ID})
}

// saveMedia stores an admin upload under MediaDir and returns its public reference.
func (a *WebApp) saveMedia(u removebg.Upload) (string, error) {
	defaultExt, allowed := adminImageTypes[u.ContentType]
	if !allowed {
		return "", &editor.ValidationError{Message: "Formato de imagen no válido. Use JPG, PNG o WebP."}
	}
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if ext == "" {
		ext = defaultExt
	}
	name := fmt.Sprintf("bg_%d%s", time.Now().UnixNano(), ext)
	if err := os.WriteFile(filepath.Join(a.config.MediaDir, name), u.Data, 0644); err != nil {
		return "", &catalog.PersistenceError{Op: "save background image", Err: err}
	}
	return path.Join(mediaPrefix, name), nil
}

// removeMedia deletes a stored upload. Failures are logged, not returned.
func (a *WebApp) removeMedia(c *fiber.Ctx, ref string) {
	if !strings.HasPrefix(ref, mediaPrefix+"/") {
		return
	}
	if err := os.Remove(a.loader.Resolve(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Ctx(c.UserContext()).Warn().Err(err).Str("ref", ref).Msg("failed to remove background image")
	}
}
