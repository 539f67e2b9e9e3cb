package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"

	"evermoment/internal/catalog"
	"evermoment/internal/compositor"
	"evermoment/internal/editor"
	"evermoment/internal/raster"
	"evermoment/internal/removebg"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

const (
	backgroundsPrefix = "/backgrounds"
	mediaPrefix       = "/media"
)

// BackgroundRemover cuts the subject out of an uploaded photo.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, u removebg.Upload) ([]byte, error)
}

type Config struct {
	Addr           string
	Editor         editor.Config
	Sessions       *editor.Registry
	Compositor     *compositor.Compositor
	Remover        BackgroundRemover
	Catalog        catalog.Lister
	BackgroundsDir string
	MediaDir       string

	// Store and AdminToken enable the admin API when both are set.
	Store      *catalog.Store
	AdminToken string

	OnBeforeShutdown func()
	OnReady          func(addr string)
}

type WebApp struct {
	config       Config
	loader       raster.Loader
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config) *WebApp {
	mounts := make(map[string]string)
	if config.BackgroundsDir != "" {
		mounts[backgroundsPrefix+"/"] = config.BackgroundsDir
	}
	if config.MediaDir != "" {
		mounts[mediaPrefix+"/"] = config.MediaDir
	}
	return &WebApp{
		config: config,
		loader: raster.Loader{
			Mounts:  mounts,
			Root:    config.BackgroundsDir,
			Timeout: 30 * time.Second,
		},
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

// errorResponse is the envelope every failed API call answers with.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": data})
}

func errorHandler(c *fiber.Ctx, err error) error {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		log.Ctx(c.UserContext()).Error().
			Err(err).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("Request failed")
	} else {
		log.Ctx(c.UserContext()).Debug().
			Err(err).
			Str("path", c.Path()).
			Int("status", status).
			Msg("Request rejected")
	}
	if status == http.StatusNotFound && c.Path() == "/favicon.ico" {
		return nil
	}
	return c.Status(status).JSON(errorResponse{Success: false, Error: msg})
}

// classifyError maps the domain error taxonomy to an HTTP status and a short message.
func classifyError(err error) (int, string) {
	var (
		fiberErr   *fiber.Error
		validation *editor.ValidationError
		loadErr    *raster.LoadError
		removal    *removebg.Error
		persist    *catalog.PersistenceError
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.As(err, &removal):
		return removal.HTTPStatus(), removal.Message
	case errors.As(err, &loadErr):
		if errors.Is(loadErr.Err, os.ErrNotExist) {
			return http.StatusNotFound, "Imagen no encontrada"
		}
		return http.StatusUnprocessableEntity, "No se pudo cargar la imagen"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "Fondo no encontrado"
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, "Sesión no encontrada"
	case errors.Is(err, editor.ErrSuperseded):
		return http.StatusConflict, "La foto fue reemplazada por una subida más reciente"
	case errors.As(err, &persist):
		return http.StatusInternalServerError, "Error al acceder a los fondos"
	}
	return http.StatusInternalServerError, "Error interno del servidor"
}

func (a *WebApp) newRouter(ctx context.Context) *fiber.App {
	limit := int(a.config.Editor.MaxUploadBytes)
	if limit <= 0 {
		limit = removebg.DefaultMaxBytes
	}
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		// room for the multipart envelope around a maximum size photo
		BodyLimit:    limit + 1024*1024,
		ErrorHandler: errorHandler,
	})

	webapp.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(log.Ctx(ctx).WithContext(c.UserContext()))
		return c.Next()
	})

	api := webapp.Group("/api")
	api.Get("/config", func(c *fiber.Ctx) error {
		return ok(c, http.StatusOK, a.config.Editor)
	})
	api.Get("/backgrounds", a.listBackgrounds)
	api.Post("/remove-bg", a.removeBackground)
	a.sessionRoutes(api.Group("/sessions"))
	if a.config.Store != nil && a.config.AdminToken != "" {
		a.adminRoutes(api.Group("/admin"))
	}
	api.Post("/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return c.SendStatus(http.StatusNoContent)
	})

	if a.config.BackgroundsDir != "" {
		webapp.Static(backgroundsPrefix, a.config.BackgroundsDir)
	}
	if a.config.MediaDir != "" {
		webapp.Static(mediaPrefix, a.config.MediaDir)
	}

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.newRouter(ctx)

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	addr := a.config.Addr
	if addr == "" {
		// Let the OS assign a random available port
		addr = "localhost:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (a *WebApp) listBackgrounds(c *fiber.Ctx) error {
	if a.config.Catalog == nil {
		return ok(c, http.StatusOK, []catalog.Entry{})
	}
	entries, err := a.config.Catalog.List(c.UserContext())
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	return ok(c, http.StatusOK, entries)
}

// removeBackground is the bare proxy: one image in, a transparent PNG out.
func (a *WebApp) removeBackground(c *fiber.Ctx) error {
	upload, err := a.readUpload(c, "image_file")
	if err != nil {
		return err
	}
	out, err := a.config.Remover.RemoveBackground(c.UserContext(), upload)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(out)
}

func openBrowser(addr string) error {
	return browser.OpenURL(addr)
}
