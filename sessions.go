package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"evermoment/internal/catalog"
	"evermoment/internal/editor"
	"evermoment/internal/raster"
	"evermoment/internal/removebg"
)

var errSessionNotFound = errors.New("session not found")

func (a *WebApp) sessionRoutes(r fiber.Router) {
	r.Post("/", func(c *fiber.Ctx) error {
		s := a.config.Sessions.Create()
		log.Ctx(c.UserContext()).Debug().Str("session", s.ID).Msg("session created")
		return ok(c, http.StatusCreated, s.View())
	})

	r.Get("/:id", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		return ok(c, http.StatusOK, s.View())
	}))
	r.Delete("/:id", func(c *fiber.Ctx) error {
		a.config.Sessions.Delete(c.Params("id"))
		return c.SendStatus(http.StatusNoContent)
	})

	r.Post("/:id/photo", a.withSession(a.uploadPhoto))
	r.Put("/:id/background", a.withSession(a.selectBackground))
	r.Put("/:id/scale", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		var req struct {
			Scale *float64 `json:"scale"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "Cuerpo inválido")
		}
		if req.Scale == nil {
			return &editor.ValidationError{Field: "scale", Message: "is required"}
		}
		if err := s.SetScale(*req.Scale); err != nil {
			return err
		}
		return ok(c, http.StatusOK, s.View())
	}))
	r.Post("/:id/placement/reset", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		s.ResetPlacement()
		return ok(c, http.StatusOK, s.View())
	}))
	r.Patch("/:id/adjustments", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		var p editor.AdjustmentPatch
		if err := c.BodyParser(&p); err != nil {
			return fiber.NewError(http.StatusBadRequest, "Cuerpo inválido")
		}
		if err := s.Adjust(p); err != nil {
			return err
		}
		return ok(c, http.StatusOK, s.View())
	}))
	r.Patch("/:id/text/:slot", a.withSession(a.editText))
	r.Put("/:id/lock", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		var req struct {
			Locked *bool `json:"locked"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "Cuerpo inválido")
		}
		if req.Locked == nil {
			s.ToggleLock()
		} else {
			s.SetLocked(*req.Locked)
		}
		return ok(c, http.StatusOK, s.View())
	}))
	r.Post("/:id/pointer", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		var ev editor.PointerEvent
		if err := c.BodyParser(&ev); err != nil {
			return fiber.NewError(http.StatusBadRequest, "Cuerpo inválido")
		}
		out := s.Pointer(ev)
		return ok(c, http.StatusOK, fiber.Map{"outcome": out, "state": s.View()})
	}))
	r.Post("/:id/reset", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		s.Reset()
		return ok(c, http.StatusOK, s.View())
	}))

	r.Get("/:id/render.png", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		c.Set(fiber.HeaderCacheControl, "no-store")
		return a.sendRender(c, s)
	}))
	r.Get("/:id/export", a.withSession(func(c *fiber.Ctx, s *editor.Session) error {
		c.Attachment(raster.ExportName(time.Now()))
		return a.sendRender(c, s)
	}))
}

func (a *WebApp) withSession(fn func(c *fiber.Ctx, s *editor.Session) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, found := a.config.Sessions.Get(c.Params("id"))
		if !found {
			return errSessionNotFound
		}
		return fn(c, s)
	}
}

func (a *WebApp) sendRender(c *fiber.Ctx, s *editor.Session) error {
	img, err := a.config.Compositor.Render(s.Scene())
	if err != nil {
		return fmt.Errorf("failed to render session %s: %w", s.ID, err)
	}
	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf, img); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

// uploadPhoto runs validate, remove background, decode, apply. A newer upload
// started while this one was in flight wins.
func (a *WebApp) uploadPhoto(c *fiber.Ctx, s *editor.Session) error {
	upload, err := a.readUpload(c, "image_file")
	if err != nil {
		return err
	}
	if err := requireImage(upload); err != nil {
		return err
	}
	gen := s.BeginSubject()
	logger := log.Ctx(c.UserContext()).With().Str("session", s.ID).Uint64("generation", gen).Logger()

	out, err := a.config.Remover.RemoveBackground(c.UserContext(), upload)
	if err != nil {
		return err
	}
	h, err := raster.DecodeBytes(out)
	if err != nil {
		return err
	}
	if err := s.ApplySubject(gen, h); err != nil {
		if errors.Is(err, editor.ErrSuperseded) {
			logger.Debug().Msg("dropping stale subject")
		}
		return err
	}
	logger.Info().Int("width", h.Width()).Int("height", h.Height()).Msg("subject applied")
	return ok(c, http.StatusOK, s.View())
}

// selectBackground accepts JSON {"type":"none"|"template","id":...} or a
// multipart form with an "image" file for a custom background.
func (a *WebApp) selectBackground(c *fiber.Ctx, s *editor.Session) error {
	if form, err := c.MultipartForm(); err == nil && len(form.File["image"]) > 0 {
		upload, err := a.readUpload(c, "image")
		if err != nil {
			return err
		}
		if err := requireImage(upload); err != nil {
			return err
		}
		h, err := raster.DecodeBytes(upload.Data)
		if err != nil {
			return err
		}
		if err := s.SetBackground(editor.CustomBackground("upload:"+upload.Filename, h)); err != nil {
			return err
		}
		return ok(c, http.StatusOK, s.View())
	}

	var req struct {
		Type editor.BackgroundKind `json:"type"`
		ID   string                `json:"id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Cuerpo inválido")
	}
	switch req.Type {
	case editor.BackgroundNone:
		if err := s.SetBackground(editor.NoBackground()); err != nil {
			return err
		}
	case editor.BackgroundTemplate:
		if a.config.Catalog == nil {
			return catalog.ErrNotFound
		}
		entries, err := a.config.Catalog.List(c.UserContext())
		if err != nil {
			return err
		}
		entry, found := catalog.Find(entries, req.ID)
		if !found {
			return catalog.ErrNotFound
		}
		h, err := a.loader.Load(c.UserContext(), entry.ImageRef)
		if err != nil {
			return err
		}
		if err := s.SetBackground(editor.TemplateBackground(entry.ImageRef, h)); err != nil {
			return err
		}
	default:
		return &editor.ValidationError{Field: "type", Message: fmt.Sprintf("unknown background type %q", req.Type)}
	}
	return ok(c, http.StatusOK, s.View())
}

func (a *WebApp) editText(c *fiber.Ctx, s *editor.Session) error {
	slot, err := editor.ParseTextSlot(c.Params("slot"))
	if err != nil {
		return err
	}
	var req struct {
		Text  *string `json:"text"`
		Font  *string `json:"font"`
		Color *string `json:"color"`
		// Size is whatever the size box holds: a number or free text.
		Size any `json:"size"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Cuerpo inválido")
	}
	p := editor.TextPatch{Text: req.Text, Font: req.Font, Color: req.Color}
	switch v := req.Size.(type) {
	case nil:
	case float64:
		n := editor.ParseTextSize(strconv.Itoa(int(v)))
		p.Size = &n
	case string:
		n := editor.ParseTextSize(v)
		p.Size = &n
	default:
		n := editor.DefaultTextSize
		p.Size = &n
	}
	if err := s.EditText(slot, p); err != nil {
		return err
	}
	return ok(c, http.StatusOK, s.View())
}

// readUpload reads one multipart file field, enforcing the upload ceiling before reading it.
func (a *WebApp) readUpload(c *fiber.Ctx, field string) (removebg.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm) {
			return removebg.Upload{}, &editor.ValidationError{Message: "No se proporcionó imagen"}
		}
		return removebg.Upload{}, fiber.NewError(http.StatusBadRequest, "Formulario inválido")
	}
	limit := a.config.Editor.MaxUploadBytes
	if limit <= 0 {
		limit = removebg.DefaultMaxBytes
	}
	if fh.Size > limit {
		return removebg.Upload{}, &editor.ValidationError{
			Message: fmt.Sprintf("La imagen es demasiado grande (máximo %dMB)", limit/(1024*1024)),
		}
	}
	f, err := fh.Open()
	if err != nil {
		return removebg.Upload{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return removebg.Upload{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return removebg.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

func requireImage(u removebg.Upload) error {
	if !strings.HasPrefix(u.ContentType, "image/") {
		return &editor.ValidationError{Message: "El archivo debe ser una imagen"}
	}
	return nil
}
