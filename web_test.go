package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"evermoment/internal/catalog"
	"evermoment/internal/compositor"
	"evermoment/internal/editor"
	"evermoment/internal/removebg"
)

type fakeRemover struct {
	calls   atomic.Int32
	err     error
	failOn  int32
	out     []byte
	blockOn int32
	release chan struct{}
}

func (f *fakeRemover) RemoveBackground(ctx context.Context, u removebg.Upload) ([]byte, error) {
	n := f.calls.Add(1)
	if f.release != nil && n == f.blockOn {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != 0 && n == f.failOn {
		return nil, &removebg.Error{Category: removebg.CategoryProcessing, Message: "Error al procesar imagen"}
	}
	return f.out, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 230, 200, 180, 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type testEnv struct {
	app     *fiber.App
	remover *fakeRemover
	store   *catalog.Store
	media   string
}

func newTestEnv(t *testing.T, withStore bool) *testEnv {
	t.Helper()
	cfg := editor.DefaultConfig()
	fonts, err := compositor.NewFontBook(cfg.Fonts)
	if err != nil {
		t.Fatal(err)
	}
	comp, err := compositor.New(cfg, fonts)
	if err != nil {
		t.Fatal(err)
	}

	bgDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(bgDir, "1.png"), pngBytes(t, 192, 108), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bgDir, "2.png"), pngBytes(t, 108, 192), 0o644); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		remover: &fakeRemover{out: pngBytes(t, 400, 500)},
		media:   t.TempDir(),
	}
	conf := Config{
		Editor:         cfg,
		Sessions:       editor.NewRegistry(cfg, time.Hour),
		Compositor:     comp,
		Remover:        env.remover,
		Catalog:        catalog.NewScanner(bgDir, backgroundsPrefix),
		BackgroundsDir: bgDir,
		MediaDir:       env.media,
	}
	if withStore {
		store, err := catalog.Open("sqlite", filepath.Join(t.TempDir(), "catalog.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { store.Close() })
		env.store = store
		conf.Store = store
		conf.Catalog = store
		conf.AdminToken = "letmein"
	}

	ctx := zerolog.Nop().WithContext(context.Background())
	env.app = NewWebApp(conf).newRouter(ctx)
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

func jsonRequest(method, target string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type formFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(f.data)
	}
	mw.Close()
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var body struct {
		Success bool   `json:"success"`
		Data    T      `json:"data"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success {
		t.Fatalf("status %d: %s", resp.StatusCode, body.Error)
	}
	return body.Data
}

func errorBody(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	defer resp.Body.Close()
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return body
}

func (e *testEnv) newSession(t *testing.T) editor.View {
	t.Helper()
	resp := e.do(t, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	return decode[editor.View](t, resp)
}

func (e *testEnv) uploadPhoto(t *testing.T, id string) *http.Response {
	return e.do(t, multipartRequest(t, http.MethodPost, "/api/sessions/"+id+"/photo", nil,
		formFile{"image_file", "me.jpg", "image/jpeg", []byte("raw photo")}))
}

func TestConfigEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	cfg := decode[editor.Config](t, env.do(t, httptest.NewRequest(http.MethodGet, "/api/config", nil)))
	if cfg.Canvas.Width != 1080 || cfg.Canvas.Height != 1350 {
		t.Errorf("canvas = %+v", cfg.Canvas)
	}
	if len(cfg.Fonts) != 5 || len(cfg.TextColors) != 6 {
		t.Errorf("got %d fonts, %d colors", len(cfg.Fonts), len(cfg.TextColors))
	}
}

func TestListLocalBackgrounds(t *testing.T) {
	env := newTestEnv(t, false)
	entries := decode[[]catalog.Entry](t, env.do(t, httptest.NewRequest(http.MethodGet, "/api/backgrounds", nil)))
	if len(entries) != 2 {
		t.Fatalf("got %d backgrounds, want 2", len(entries))
	}
	if entries[0].ImageRef != "/backgrounds/1.png" || entries[0].Name != "Fondo 1" {
		t.Errorf("first = %+v", entries[0])
	}

	resp := env.do(t, httptest.NewRequest(http.MethodGet, entries[0].ImageRef, nil))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("background file status %d", resp.StatusCode)
	}
}

func TestSessionEditing(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.newSession(t).ID

	v := decode[editor.View](t, env.uploadPhoto(t, id))
	if !v.HasSubject || v.Scale != 0.85 {
		t.Fatalf("after upload: %+v", v)
	}
	if v.Position != (editor.Point{X: 540, Y: 675}) {
		t.Errorf("subject not centered: %+v", v.Position)
	}

	v = decode[editor.View](t, env.do(t, jsonRequest(http.MethodPut, "/api/sessions/"+id+"/scale", map[string]any{"scale": 9})))
	if v.Scale != 2.5 {
		t.Errorf("scale = %v, want clamped 2.5", v.Scale)
	}

	long := strings.Repeat("ñ", 55)
	v = decode[editor.View](t, env.do(t, jsonRequest(http.MethodPatch, "/api/sessions/"+id+"/text/header",
		map[string]any{"text": long, "size": "grande", "color": "gold", "font": "bebas"})))
	if n := len([]rune(v.Header.Text)); n != editor.MaxTextLength {
		t.Errorf("header has %d runes, want %d", n, editor.MaxTextLength)
	}
	if v.Header.PixelSize != editor.DefaultTextSize {
		t.Errorf("size = %d, want fallback %d", v.Header.PixelSize, editor.DefaultTextSize)
	}

	resp := env.do(t, jsonRequest(http.MethodPatch, "/api/sessions/"+id+"/adjustments", map[string]any{"brightness": 1.2, "contrast": -1}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid adjustment status %d", resp.StatusCode)
	}
	v = decode[editor.View](t, env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)))
	if v.Adjustments != editor.DefaultAdjustments() {
		t.Errorf("rejected patch mutated state: %+v", v.Adjustments)
	}

	v = decode[editor.View](t, env.do(t, jsonRequest(http.MethodPut, "/api/sessions/"+id+"/background", map[string]any{"type": "template", "id": "fondo-1"})))
	if v.Background.Kind != editor.BackgroundTemplate || v.Background.ImageRef != "/backgrounds/1.png" {
		t.Errorf("background = %+v", v.Background)
	}

	v = decode[editor.View](t, env.do(t, httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/reset", nil)))
	if v.Background.Kind != editor.BackgroundNone || v.Scale != 0.85 || v.Header.Text != "" || !v.HasSubject {
		t.Errorf("after reset: %+v", v)
	}
}

func TestCustomBackground(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.newSession(t).ID

	v := decode[editor.View](t, env.do(t, multipartRequest(t, http.MethodPut, "/api/sessions/"+id+"/background", nil,
		formFile{"image", "mine.png", "image/png", pngBytes(t, 30, 30)})))
	if v.Background.Kind != editor.BackgroundCustom {
		t.Errorf("kind = %s", v.Background.Kind)
	}

	resp := env.do(t, multipartRequest(t, http.MethodPut, "/api/sessions/"+id+"/background", nil,
		formFile{"image", "notes.txt", "text/plain", []byte("hi")}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("text upload status %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, jsonRequest(http.MethodPut, "/api/sessions/"+id+"/background", map[string]any{"type": "template", "id": "fondo-99"}))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown template status %d, want 404", resp.StatusCode)
	}
}

func TestPhotoValidationSkipsRemoval(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.newSession(t).ID

	resp := env.do(t, multipartRequest(t, http.MethodPost, "/api/sessions/"+id+"/photo", nil,
		formFile{"image_file", "doc.pdf", "application/pdf", []byte("%PDF")}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("pdf upload status %d", resp.StatusCode)
	}

	big := make([]byte, editor.DefaultConfig().MaxUploadBytes+1)
	resp = env.do(t, multipartRequest(t, http.MethodPost, "/api/sessions/"+id+"/photo", nil,
		formFile{"image_file", "big.jpg", "image/jpeg", big}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized upload status %d", resp.StatusCode)
	}

	resp = env.do(t, multipartRequest(t, http.MethodPost, "/api/sessions/"+id+"/photo", map[string]string{"x": "y"}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing file status %d", resp.StatusCode)
	}

	if n := env.remover.calls.Load(); n != 0 {
		t.Errorf("remover called %d times for invalid uploads", n)
	}
}

func TestStaleUploadIsDropped(t *testing.T) {
	env := newTestEnv(t, false)
	env.remover.blockOn = 1
	env.remover.release = make(chan struct{})
	id := env.newSession(t).ID

	stale := multipartRequest(t, http.MethodPost, "/api/sessions/"+id+"/photo", nil,
		formFile{"image_file", "old.jpg", "image/jpeg", []byte("old")})
	first := make(chan int, 1)
	go func() {
		resp, err := env.app.Test(stale, -1)
		if err != nil {
			first <- 0
			return
		}
		first <- resp.StatusCode
	}()

	deadline := time.Now().Add(5 * time.Second)
	for env.remover.calls.Load() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("first upload never reached the remover")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := env.uploadPhoto(t, id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second upload status %d", resp.StatusCode)
	}
	close(env.remover.release)

	if status := <-first; status != http.StatusConflict {
		t.Errorf("stale upload status %d, want 409", status)
	}
}

func TestFailedUploadKeepsEarlierInFlight(t *testing.T) {
	env := newTestEnv(t, false)
	env.remover.blockOn = 1
	env.remover.failOn = 2
	env.remover.release = make(chan struct{})
	id := env.newSession(t).ID

	earlier := multipartRequest(t, http.MethodPost, "/api/sessions/"+id+"/photo", nil,
		formFile{"image_file", "old.jpg", "image/jpeg", []byte("old")})
	first := make(chan int, 1)
	go func() {
		resp, err := env.app.Test(earlier, -1)
		if err != nil {
			first <- 0
			return
		}
		first <- resp.StatusCode
	}()

	deadline := time.Now().Add(5 * time.Second)
	for env.remover.calls.Load() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("first upload never reached the remover")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := env.uploadPhoto(t, id)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("failing upload status %d, want 500", resp.StatusCode)
	}
	close(env.remover.release)

	if status := <-first; status != http.StatusOK {
		t.Errorf("earlier upload status %d, want 200", status)
	}
}

func TestRemoveBgProxyErrors(t *testing.T) {
	env := newTestEnv(t, false)
	env.remover.err = &removebg.Error{Category: removebg.CategoryQuota, Status: 402, Message: "Créditos agotados"}

	resp := env.do(t, multipartRequest(t, http.MethodPost, "/api/remove-bg", nil,
		formFile{"image_file", "me.jpg", "image/jpeg", []byte("raw")}))
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("status %d, want 402", resp.StatusCode)
	}
	body := errorBody(t, resp)
	if body.Success || body.Error != "Créditos agotados" {
		t.Errorf("body = %+v", body)
	}
}

func TestRemoveBgProxySuccess(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, multipartRequest(t, http.MethodPost, "/api/remove-bg", nil,
		formFile{"image_file", "me.jpg", "image/jpeg", []byte("raw")}))
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestPointerDrag(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.newSession(t).ID
	env.uploadPhoto(t, id)

	display := editor.Display{Width: 540, Height: 675}
	send := func(typ editor.PointerEventType, x, y float64) (editor.Outcome, editor.View) {
		data := decode[struct {
			Outcome editor.Outcome `json:"outcome"`
			State   editor.View    `json:"state"`
		}](t, env.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/pointer", editor.PointerEvent{
			Type: typ, Kind: editor.Touch, ClientX: x, ClientY: y, Touches: 1, Display: display,
		})))
		return data.Outcome, data.State
	}

	// display is half size, so client (270,337.5) is canvas (540,675)
	out, v := send(editor.PointerDown, 270, 337.5)
	if !v.Interaction.Dragging || !out.PreventDefault {
		t.Fatalf("drag did not start: %+v %+v", out, v.Interaction)
	}
	out, v = send(editor.PointerMove, 320, 347.5)
	if !out.Render || v.Position != (editor.Point{X: 640, Y: 695}) {
		t.Errorf("after move: %+v at %+v", out, v.Position)
	}
	_, v = send(editor.PointerUp, 320, 347.5)
	if v.Interaction.Dragging {
		t.Error("still dragging after pointer up")
	}

	v = decode[editor.View](t, env.do(t, jsonRequest(http.MethodPut, "/api/sessions/"+id+"/lock", map[string]any{})))
	if !v.Interaction.Locked {
		t.Fatal("toggle did not lock")
	}
	_, v = send(editor.PointerDown, 320, 347.5)
	if v.Interaction.Dragging {
		t.Error("drag started while locked")
	}
}

func TestRenderAndExport(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.newSession(t).ID
	env.uploadPhoto(t, id)

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/render.png", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("render status %d", resp.StatusCode)
	}
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1080 || b.Dy() != 1350 {
		t.Errorf("render is %dx%d", b.Dx(), b.Dy())
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0xffff {
		t.Error("corner pixel is not opaque")
	}

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/export", nil))
	cd := resp.Header.Get("Content-Disposition")
	if !strings.Contains(cd, "attachment") || !strings.Contains(cd, "evermoment-recuerdo-") || !strings.Contains(cd, ".png") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
	if body := errorBody(t, resp); body.Success || body.Error == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestAdminRoutesDisabledWithoutStore(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/backgrounds", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d, want 404", resp.StatusCode)
	}
}

func adminRequest(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer letmein")
	return req
}

func TestAdminBackgroundLifecycle(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/backgrounds", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", resp.StatusCode)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/backgrounds", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if resp := env.do(t, req); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: status %d", resp.StatusCode)
	}

	resp = env.do(t, adminRequest(multipartRequest(t, http.MethodPost, "/api/admin/backgrounds",
		map[string]string{"name": "Playa"},
		formFile{"image", "playa.gif", "image/gif", []byte("GIF89a")})))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("gif upload status %d, want 400", resp.StatusCode)
	}
	resp = env.do(t, adminRequest(multipartRequest(t, http.MethodPost, "/api/admin/backgrounds", nil,
		formFile{"image", "playa.png", "image/png", pngBytes(t, 20, 20)})))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("nameless upload status %d, want 400", resp.StatusCode)
	}

	var created []catalog.Entry
	for _, name := range []string{"Playa", "Volcán"} {
		resp := env.do(t, adminRequest(multipartRequest(t, http.MethodPost, "/api/admin/backgrounds",
			map[string]string{"name": name},
			formFile{"image", strings.ToLower(name) + ".png", "image/png", pngBytes(t, 20, 20)})))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: status %d", name, resp.StatusCode)
		}
		created = append(created, decode[catalog.Entry](t, resp))
	}
	playa, volcan := created[0], created[1]
	if !strings.HasPrefix(playa.ImageRef, "/media/bg_") {
		t.Errorf("image ref = %q", playa.ImageRef)
	}
	stored := filepath.Join(env.media, filepath.Base(playa.ImageRef))
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("uploaded file not stored: %v", err)
	}

	// the public list is fed by the store and the stored image is loadable as a template
	public := decode[[]catalog.Entry](t, env.do(t, httptest.NewRequest(http.MethodGet, "/api/backgrounds", nil)))
	if len(public) != 2 || public[0].ID != playa.ID {
		t.Fatalf("public list = %+v", public)
	}
	id := env.newSession(t).ID
	v := decode[editor.View](t, env.do(t, jsonRequest(http.MethodPut, "/api/sessions/"+id+"/background", map[string]any{"type": "template", "id": volcan.ID})))
	if v.Background.ImageRef != volcan.ImageRef {
		t.Errorf("background = %+v", v.Background)
	}

	updated := decode[catalog.Entry](t, env.do(t, adminRequest(jsonRequest(http.MethodPatch, "/api/admin/backgrounds/"+playa.ID, map[string]any{"active": false}))))
	if updated.Active {
		t.Error("update did not deactivate")
	}
	public = decode[[]catalog.Entry](t, env.do(t, httptest.NewRequest(http.MethodGet, "/api/backgrounds", nil)))
	if len(public) != 1 || public[0].ID != volcan.ID {
		t.Errorf("inactive background still listed: %+v", public)
	}

	resp = env.do(t, adminRequest(jsonRequest(http.MethodPatch, "/api/admin/backgrounds/"+playa.ID, map[string]any{})))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty patch status %d", resp.StatusCode)
	}

	all := decode[[]catalog.Entry](t, env.do(t, adminRequest(jsonRequest(http.MethodPut, "/api/admin/backgrounds/order", map[string]any{"ids": []string{volcan.ID, playa.ID}}))))
	if len(all) != 2 || all[0].ID != volcan.ID {
		t.Errorf("after reorder = %+v", all)
	}

	resp = env.do(t, adminRequest(httptest.NewRequest(http.MethodDelete, "/api/admin/backgrounds/"+playa.ID, nil)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Errorf("image file survived delete: %v", err)
	}
	resp = env.do(t, adminRequest(httptest.NewRequest(http.MethodDelete, "/api/admin/backgrounds/"+playa.ID, nil)))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status %d, want 404", resp.StatusCode)
	}
}

func TestAdminUpdateRejectsBlankName(t *testing.T) {
	env := newTestEnv(t, true)
	entry, err := env.store.Create(context.Background(), "Playa", "/media/playa.png", true)
	if err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, adminRequest(jsonRequest(http.MethodPatch, "/api/admin/backgrounds/"+entry.ID, map[string]any{"name": "   "})))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("json patch status %d, want 400", resp.StatusCode)
	}
	if body := errorBody(t, resp); body.Error != "El nombre es requerido" {
		t.Errorf("error = %q", body.Error)
	}

	resp = env.do(t, adminRequest(multipartRequest(t, http.MethodPatch, "/api/admin/backgrounds/"+entry.ID,
		map[string]string{"name": ""},
		formFile{"image", "nuevo.png", "image/png", pngBytes(t, 20, 20)})))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("multipart patch status %d, want 400", resp.StatusCode)
	}
	files, err := os.ReadDir(env.media)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("rejected update left %d files in media", len(files))
	}

	got, err := env.store.Get(context.Background(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Playa" || got.ImageRef != "/media/playa.png" {
		t.Errorf("entry changed to %+v", got)
	}
}
